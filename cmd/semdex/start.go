package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/semdex/internal/config"
	"github.com/kailas-cloud/semdex/internal/daemon"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/pkg/client"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the daemon and wait until it is ready",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := config.GetEnv()
			cfg, err := config.Load(env)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logpkg.New(env, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}

			timeout := time.Duration(cfg.Server.LaunchTimeoutSec) * time.Second
			launcher := daemon.NewLauncher(logger, cfg.Server.Port, timeout)

			err = launcher.Start(cmd.Context(), exe, []string{"daemon"}, func(msg string) {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			})
			if errors.Is(err, daemon.ErrAlreadyRunning) {
				// port is bound; find out whether a healthy daemon owns it
				st, qerr := queryStatus(cfg.Server.Port)
				if qerr != nil {
					return fmt.Errorf("port %d is in use but the daemon is not responding: %w",
						cfg.Server.Port, qerr)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Already running (model %s, %d posts loaded)\n",
					st.Model, st.LoadedPosts)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Ready")
			return nil
		},
	}
}

func queryStatus(port int) (*client.Status, error) {
	c, err := client.Dial(fmt.Sprintf("127.0.0.1:%d", port),
		client.WithCallTimeout(10*time.Second))
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Status(context.Background())
}
