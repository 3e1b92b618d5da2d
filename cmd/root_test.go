package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// resetRoot restores shared cobra state after a test drives rootCmd.
func resetRoot(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
}

func TestHelpListsCommands(t *testing.T) {
	resetRoot(t)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--help"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("help error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"serve", "agent", "led", "version"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing command %q", want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	resetRoot(t)
	viper.Reset()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GROQ_API_KEY", "")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"version"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Concierge") {
		t.Errorf("version output missing app name: %q", out)
	}
	if !strings.Contains(out, "Configuration:") {
		t.Errorf("version output missing configuration section: %q", out)
	}
	if !strings.Contains(out, "GROQ_API_KEY: Not set") {
		t.Errorf("version output should flag the missing backend key: %q", out)
	}
}

func TestAgentLeaveRequiresAgentID(t *testing.T) {
	resetRoot(t)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"agent", "leave"})

	if err := rootCmd.Execute(); err == nil {
		t.Fatal("agent leave without an ID should fail")
	}
}
