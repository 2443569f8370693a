// Package cli provides the command-line interface for voice-of-light.
package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/reshetovitsme/voice-of-light/internal/shared/config"
	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// LogLevel is applied to the process logger once the config is read.
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "voice-of-light",
	Short: "Announce new posts, videos, streams and blog entries in chats",
	Long: "voice-of-light watches reddit, twitch, youtube and blogger resources, decides which events are new " +
		"and announces them to every subscribed Telegram chat or Discord webhook.",
	SilenceUsage: true,
	// Running without a subcommand starts the bot.
	RunE: serveAction,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("voice-of-light %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(renewLeasesCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// applyLogLevel sets the process log level from the config; unknown values
// keep the current level.
func applyLogLevel(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		slog.Warn("Ignoring unknown log level", "log_level", cfg.LogLevel)
		return
	}
	LogLevel.Set(level)
}
