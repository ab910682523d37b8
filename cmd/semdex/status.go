package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/semdex/internal/config"
	"github.com/kailas-cloud/semdex/pkg/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.GetEnv())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			c, err := client.Dial(fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
				client.WithCallTimeout(10*time.Second))
			if errors.Is(err, client.ErrDialTimeout) {
				return fmt.Errorf("daemon is not responding on port %d", cfg.Server.Port)
			}
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not running")
				return nil
			}
			defer c.Close()

			st, err := c.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("query status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status: %s\n", st.Status)
			fmt.Fprintf(out, "Model:  %s\n", st.Model)
			fmt.Fprintf(out, "Posts:  %d\n", st.LoadedPosts)
			if len(st.AvailableModes) > 0 {
				fmt.Fprintf(out, "Modes:  %s\n", strings.Join(st.AvailableModes, ", "))
			}
			return nil
		},
	}
}
