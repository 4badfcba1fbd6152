package commands

import (
	"github.com/spf13/cobra"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/daemon"
)

// newServeCmd creates the `nakedclaw serve` command: the daemon
// process itself, run in the foreground. `nakedclaw start` spawns this
// detached; running it directly is useful for development.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		Long: `Run the assistant daemon in the foreground: bind the control
socket, rehydrate scheduled jobs, and serve CLI clients until
interrupted.

Normally started detached via "nakedclaw start"; run directly for
development or under a process supervisor.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	d, err := daemon.New(cfg, nil, logger)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}

	d.Wait()
	return nil
}
