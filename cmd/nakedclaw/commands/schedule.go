// schedule.go manages reminders from the shell, without opening the
// REPL. Each subcommand is a short-lived control-socket round trip.
package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/protocol"
)

// newScheduleCmd creates the `nakedclaw schedule` command group.
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled reminders",
		Long: `Manage the daemon's scheduled reminders.

Examples:
  nakedclaw schedule add "in 5 minutes" drink water
  nakedclaw schedule add "every day at 08:00" morning briefing
  nakedclaw schedule list
  nakedclaw schedule remove 4fa2c81b`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <spec> <text>...",
			Short: "Schedule a reminder",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				// The spec may be quoted as one argument or spread
				// over several; the daemon splits it either way.
				var flat []string
				for _, arg := range args {
					flat = append(flat, strings.Fields(arg)...)
				}
				return scheduleCommand(cmd, "/schedule", flat)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List scheduled jobs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return scheduleCommand(cmd, "/jobs", nil)
			},
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Cancel a scheduled job",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return scheduleCommand(cmd, "/cancel", args)
			},
		},
	)

	return cmd
}

// scheduleCommand sends one command message and prints the reply.
func scheduleCommand(cmd *cobra.Command, command string, args []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.SocketPath()); err != nil {
		return fmt.Errorf("daemon is not running (no socket at %s) — start it with: nakedclaw start", cfg.SocketPath())
	}

	client, err := protocol.Dial(cfg.SocketPath())
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Request(protocol.Message{
		Type:      protocol.TypeCommand,
		SessionID: "terminal:" + strconv.Itoa(os.Getpid()),
		Command:   command,
		Args:      args,
	}, 10*time.Second)
	if err != nil {
		return err
	}

	fmt.Println(renderResponse(resp))
	return nil
}
