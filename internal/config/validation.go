package config

import (
	"fmt"
	"net"
)

// Validate validates configuration values common to every command.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr cannot be empty", ErrInvalidAddr)
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("%w: %q is not host:port: %v", ErrInvalidAddr, c.Server.Addr, err)
	}

	if c.Server.RateBurst < 1 {
		return fmt.Errorf("%w: server.rate_burst must be at least 1, got %d", ErrInvalidRateBurst, c.Server.RateBurst)
	}

	if c.Corpus.Path == "" {
		return fmt.Errorf("%w: corpus.path cannot be empty", ErrMissingCorpusPath)
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("%w: backend.base_url cannot be empty", ErrInvalidBackendURL)
	}

	// Timeout range: 1s to 600s, covering one full streamed answer
	if c.Backend.TimeoutSeconds < 1 || c.Backend.TimeoutSeconds > 600 {
		return fmt.Errorf("%w: backend.timeout_seconds must be between 1 and 600, got %d", ErrInvalidTimeout, c.Backend.TimeoutSeconds)
	}

	if c.LED.TimeoutSeconds < 1 || c.LED.TimeoutSeconds > 30 {
		return fmt.Errorf("%w: led.timeout_seconds must be between 1 and 30, got %d", ErrInvalidTimeout, c.LED.TimeoutSeconds)
	}

	return nil
}

// ValidateAgent checks the provisioning credentials every agent command
// needs. The relay itself never requires these.
func (c *Config) ValidateAgent() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Agent.AppID == "" {
		return fmt.Errorf("%w: agent.app_id (AGORA_APP_ID) is required", ErrMissingAgentCredentials)
	}
	if c.Agent.CustomerKey == "" {
		return fmt.Errorf("%w: agent.customer_key (AGORA_CUSTOMER_KEY) is required", ErrMissingAgentCredentials)
	}
	if c.Agent.CustomerSecret == "" {
		return fmt.Errorf("%w: agent.customer_secret (AGORA_CUSTOMER_SECRET) is required", ErrMissingAgentCredentials)
	}

	return nil
}

// ValidateAgentJoin checks the additional fields a join call needs beyond
// the credentials: the channel to join and the relay URL the agent's LLM
// section points at. Leaving a running agent needs neither.
func (c *Config) ValidateAgentJoin() error {
	if err := c.ValidateAgent(); err != nil {
		return err
	}

	if c.Agent.Channel == "" {
		return fmt.Errorf("%w: agent.channel is required", ErrMissingAgentCredentials)
	}
	if c.Agent.RelayURL == "" {
		return fmt.Errorf("%w: agent.relay_url must point at this relay's public /chat/completions endpoint", ErrMissingRelayURL)
	}

	return nil
}
