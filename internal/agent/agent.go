// Package agent provisions the conversational voice agent that fronts the
// relay. The platform joins an RTC channel on our behalf, runs ASR and TTS,
// and calls the relay's chat completions endpoint for every visitor turn.
//
// The client covers the two lifecycle calls: Join starts an agent in the
// configured channel, Leave tears it down again. Credentials travel as HTTP
// Basic auth, matching the provisioning API.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mallhive/concierge/internal/config"
	"github.com/mallhive/concierge/internal/log"
	"github.com/mallhive/concierge/internal/prompt"
)

// ErrProvision marks any failure talking to the provisioning API.
var ErrProvision = errors.New("agent provisioning error")

// DefaultTimeout bounds one provisioning call.
const DefaultTimeout = 15 * time.Second

// agentName identifies the agent on the provisioning side.
const agentName = "rag_agent_with_emotions"

// Greeting and failure lines the agent speaks without consulting the relay.
// Both carry a leading emotion tag so the light ring reacts to them too.
const (
	greetingMessage = "[welcoming] Hello! Welcome to Central City Mall. How can I assist you today?"
	failureMessage  = "[thinking] Let me check that information for you. One moment please."
)

const (
	ttsVendor   = "groq"
	asrVendor   = "assemblyai"
	dataChannel = "rtm"
)

// skipBracketed is the TTS skip pattern that strips square-bracketed text,
// so emotion tags are never spoken aloud.
const skipBracketed = 4

// Session is the provisioning API's view of a running agent.
type Session struct {
	AgentID  string `json:"agent_id"`
	Status   string `json:"status"`
	CreateTS int64  `json:"create_ts"`
}

// Client talks to the voice agent provisioning API.
type Client struct {
	cfg    config.AgentConfig
	httpc  *http.Client
	logger log.Logger
}

// New creates a provisioning client. Credential completeness is the caller's
// concern; see config.Config.ValidateAgent.
func New(cfg config.AgentConfig, logger log.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: DefaultTimeout},
		logger: logger,
	}
}

type joinRequest struct {
	Name       string     `json:"name"`
	Properties properties `json:"properties"`
}

type properties struct {
	Channel          string            `json:"channel"`
	Token            string            `json:"token"`
	AgentRTCUID      string            `json:"agent_rtc_uid"`
	RemoteRTCUIDs    []string          `json:"remote_rtc_uids"`
	IdleTimeout      int               `json:"idle_timeout"`
	AdvancedFeatures advancedFeatures  `json:"advanced_features"`
	Parameters       channelParameters `json:"parameters"`
	LLM              llmSection        `json:"llm"`
	TTS              ttsSection        `json:"tts"`
	ASR              asrSection        `json:"asr"`
}

type advancedFeatures struct {
	EnableAIVAD bool `json:"enable_aivad"`
	EnableRTM   bool `json:"enable_rtm"`
}

type channelParameters struct {
	DataChannel string `json:"data_channel"`
}

type llmSection struct {
	URL             string           `json:"url"`
	APIKey          string           `json:"api_key"`
	SystemMessages  []prompt.Message `json:"system_messages"`
	MaxHistory      int              `json:"max_history"`
	GreetingMessage string           `json:"greeting_message"`
	FailureMessage  string           `json:"failure_message"`
	Params          llmParams        `json:"params"`
}

type llmParams struct {
	Model string `json:"model"`
}

type ttsSection struct {
	Vendor       string    `json:"vendor"`
	Params       ttsParams `json:"params"`
	SkipPatterns []int     `json:"skip_patterns"`
}

type ttsParams struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
	Voice  string `json:"voice"`
}

type asrSection struct {
	Vendor string    `json:"vendor"`
	Params asrParams `json:"params"`
}

type asrParams struct {
	APIKey   string `json:"api_key"`
	Language string `json:"language"`
}

// Join starts an agent in the configured channel, pointed at the relay's
// completion endpoint. The relay injects the persona and retrieved context
// itself, so the llm section carries no API key of its own.
func (c *Client) Join(ctx context.Context) (*Session, error) {
	req := joinRequest{
		Name: agentName,
		Properties: properties{
			Channel:       c.cfg.Channel,
			Token:         c.cfg.Token,
			AgentRTCUID:   c.cfg.AgentRTCUID,
			RemoteRTCUIDs: c.cfg.RemoteRTCUIDs,
			IdleTimeout:   c.cfg.IdleTimeout,
			AdvancedFeatures: advancedFeatures{
				EnableAIVAD: true,
				EnableRTM:   true,
			},
			Parameters: channelParameters{DataChannel: dataChannel},
			LLM: llmSection{
				URL:    c.cfg.RelayURL,
				APIKey: "",
				SystemMessages: []prompt.Message{
					{Role: prompt.RoleSystem, Content: prompt.Persona},
				},
				MaxHistory:      c.cfg.MaxHistory,
				GreetingMessage: greetingMessage,
				FailureMessage:  failureMessage,
				Params:          llmParams{Model: c.cfg.LLMModel},
			},
			TTS: ttsSection{
				Vendor: ttsVendor,
				Params: ttsParams{
					APIKey: c.cfg.TTSAPIKey,
					Model:  c.cfg.TTSModel,
					Voice:  c.cfg.TTSVoice,
				},
				SkipPatterns: []int{skipBracketed},
			},
			ASR: asrSection{
				Vendor: asrVendor,
				Params: asrParams{
					APIKey:   c.cfg.ASRAPIKey,
					Language: c.cfg.ASRLanguage,
				},
			},
		},
	}

	url := fmt.Sprintf("%s/projects/%s/join", c.cfg.BaseURL, c.cfg.AppID)
	var session Session
	if err := c.makeRequest(ctx, url, req, &session); err != nil {
		return nil, err
	}

	c.logger.Info("voice agent joined",
		"agent_id", session.AgentID,
		"status", session.Status,
		"channel", c.cfg.Channel)
	return &session, nil
}

// Leave stops the agent with the given ID and removes it from the channel.
func (c *Client) Leave(ctx context.Context, agentID string) error {
	if agentID == "" {
		return fmt.Errorf("%w: agent id required", ErrProvision)
	}

	url := fmt.Sprintf("%s/projects/%s/agents/%s/leave", c.cfg.BaseURL, c.cfg.AppID, agentID)
	if err := c.makeRequest(ctx, url, nil, nil); err != nil {
		return err
	}

	c.logger.Info("voice agent left", "agent_id", agentID)
	return nil
}

// maxErrorBody caps how much of a response body is kept.
const maxErrorBody = 4096

// makeRequest is a helper to call the provisioning API. All calls are POSTs.
func (c *Client) makeRequest(ctx context.Context, url string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %w", ErrProvision, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrProvision, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.CustomerKey, c.cfg.CustomerSecret)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProvision, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrProvision, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrProvision, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: unmarshal response: %w", ErrProvision, err)
		}
	}
	return nil
}
