package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mallhive/concierge/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Concierge %s\n", AppVersion)
		fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
		fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
		fmt.Fprintln(out)

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(out, "Configuration: unavailable (%v)\n", err)
			return nil
		}

		fmt.Fprintln(out, "Configuration:")
		fmt.Fprintf(out, "  Address: %s\n", cfg.Server.Addr)
		fmt.Fprintf(out, "  Corpus:  %s\n", cfg.Corpus.Path)
		fmt.Fprintf(out, "  Backend: %s\n", cfg.Backend.BaseURL)
		if cfg.LED.Enabled() {
			fmt.Fprintf(out, "  LED:     %s\n", cfg.LED.URL)
		} else {
			fmt.Fprintln(out, "  LED:     not configured")
		}

		if key := os.Getenv("GROQ_API_KEY"); len(key) >= 8 {
			fmt.Fprintf(out, "  GROQ_API_KEY: %s...%s (configured)\n", key[:4], key[len(key)-4:])
		} else if key != "" {
			fmt.Fprintln(out, "  GROQ_API_KEY: (configured)")
		} else {
			fmt.Fprintln(out, "  GROQ_API_KEY: Not set")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Hint: set GROQ_API_KEY so the relay can reach its completion backend")
			fmt.Fprintln(out, "  export GROQ_API_KEY=your-api-key")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
