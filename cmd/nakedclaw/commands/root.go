// Package commands implements the nakedclaw CLI using cobra.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/geongeorge/nakedclaw/pkg/nakedclaw/config"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nakedclaw",
		Short: "nakedclaw - personal assistant daemon",
		Long: `nakedclaw is a personal assistant daemon controlled over a local
Unix socket. The daemon persists conversations, schedules reminders,
and serves any number of CLI clients.

Examples:
  nakedclaw start
  nakedclaw status
  nakedclaw chat
  nakedclaw schedule add "in 5 minutes" drink water`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newChatCmd(),
		newScheduleCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// resolveConfig loads configuration honoring the --config flag.
func resolveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// newLogger builds the slog logger from config and the --verbose flag.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
