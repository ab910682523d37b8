// Command semdex manages the semantic search daemon: start launches it
// in the background and waits for readiness, stop and status talk to a
// running instance, and the hidden daemon subcommand is the long-lived
// process itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/semdex/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "semdex",
		Short:         "Semantic search over archived posts",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newDaemonCmd(),
	)
	return root
}
