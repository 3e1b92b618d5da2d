// Package cmd provides the concierge CLI commands.
//
// Commands:
//   - serve: HTTP relay server with SSE streaming
//   - agent: provision the voice agent (join/leave)
//   - led:   poke the kiosk LED device service
//   - version: build and configuration information
//
// Signal handling and graceful shutdown are implemented for the serve
// command via context cancellation.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mallhive/concierge/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Concierge - retrieval-backed voice assistant relay for Central City Mall",
	Long: `Concierge answers mall visitors through a voice agent kiosk.

It serves an OpenAI-compatible streaming completion endpoint that retrieves
mall information from a local text corpus, injects it into the prompt, and
relays the backend LLM's answer chunk by chunk. Every answer opens with an
emotion tag that drives the kiosk's LED light ring.

Run 'concierge serve' to start the relay, then 'concierge agent join' to
put the voice agent into its RTC channel.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG in the environment switches
// to debug level; logs go to stderr.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	logger := log.New(cfg)
	slog.SetDefault(logger)
	return logger
}
