// daemonctl.go implements the process-control commands:
// start | stop | restart | status | logs.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/daemon"
)

func newManager(cmd *cobra.Command) (*daemon.Manager, error) {
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	return daemon.NewManager(cfg, configPath, nil), nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Long: `Start the daemon as a detached background process, immune to this
shell's exit. Output goes to the daemon log file. A daemon that is
already running is reported, not restarted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(cmd)
			if err != nil {
				return err
			}
			return m.Start()
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Stop the daemon gracefully (SIGTERM), escalating to SIGKILL if it
does not exit within the grace period.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(cmd)
			if err != nil {
				return err
			}
			return m.Stop()
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(cmd)
			if err != nil {
				return err
			}
			return m.Restart()
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report daemon status",
		Long: `Report whether the daemon is running and, if its control socket is
reachable, a live snapshot: channels, session count, job count, uptime.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(cmd)
			if err != nil {
				return err
			}
			return m.Status()
		},
	}
}

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log tail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newManager(cmd)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			return m.Logs(n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of trailing lines to show")
	return cmd
}
