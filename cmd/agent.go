package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mallhive/concierge/internal/agent"
	"github.com/mallhive/concierge/internal/config"
)

// agentCallTimeout bounds one provisioning call from the CLI.
const agentCallTimeout = 30 * time.Second

var joinChannel string

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Provision the conversational voice agent",
	Long: `Manage the voice agent fronting the relay.

'agent join' starts an agent in the configured RTC channel, pointed at the
relay's /chat/completions endpoint. Save the printed agent ID: 'agent leave'
needs it to stop the session again.`,
}

var agentJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Start the voice agent in the configured channel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := initLogger()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if joinChannel != "" {
			cfg.Agent.Channel = joinChannel
		}
		if err := cfg.ValidateAgentJoin(); err != nil {
			return fmt.Errorf("validating agent config: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), agentCallTimeout)
		defer cancel()

		client := agent.New(cfg.Agent, logger)
		session, err := client.Join(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Agent started in channel %q\n", cfg.Agent.Channel)
		fmt.Fprintf(out, "  agent_id:  %s\n", session.AgentID)
		fmt.Fprintf(out, "  status:    %s\n", session.Status)
		fmt.Fprintf(out, "  create_ts: %d\n", session.CreateTS)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Stop it later with: concierge agent leave %s\n", session.AgentID)
		return nil
	},
}

var agentLeaveCmd = &cobra.Command{
	Use:   "leave <agent-id>",
	Short: "Stop a running voice agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := initLogger()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.ValidateAgent(); err != nil {
			return fmt.Errorf("validating agent config: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), agentCallTimeout)
		defer cancel()

		client := agent.New(cfg.Agent, logger)
		if err := client.Leave(ctx, args[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Agent %s stopped and left the channel\n", args[0])
		return nil
	},
}

func init() {
	agentJoinCmd.Flags().StringVar(&joinChannel, "channel", "", "RTC channel to join, overrides config")
	agentCmd.AddCommand(agentJoinCmd)
	agentCmd.AddCommand(agentLeaveCmd)
	rootCmd.AddCommand(agentCmd)
}
