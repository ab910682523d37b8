package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/semdex/internal/config"
	"github.com/kailas-cloud/semdex/pkg/client"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
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

			if err := c.StopServer(cmd.Context()); err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			return nil
		},
	}
}
