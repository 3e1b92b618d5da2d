// Package backend streams chat completions from an OpenAI-compatible
// endpoint (Groq by default).
//
// Chunks are relayed as the raw JSON payloads of the backend's SSE "data:"
// lines, in arrival order, without interpretation; the backend's own
// "[DONE]" marker is consumed here and never surfaces as a chunk. The whole
// call runs under a configurable deadline so a stalled backend cannot hold a
// relay stream open forever.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mallhive/concierge/internal/log"
	"github.com/mallhive/concierge/internal/prompt"
)

// ErrBackend marks any failure of the streaming completion call: transport,
// authentication, quota, malformed response, or deadline expiry.
var ErrBackend = errors.New("completion backend error")

// DefaultBaseURL is the Groq OpenAI-compatible API root.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// DefaultTimeout bounds one full streaming call (connect through last byte).
const DefaultTimeout = 60 * time.Second

const (
	doneMarker = "[DONE]"

	// maxLineBytes caps one SSE line; chunks are small but a misbehaving
	// backend must not grow the scanner unbounded.
	maxLineBytes = 1024 * 1024

	// maxErrorBody caps how much of an error response body is kept.
	maxErrorBody = 4096
)

// Request is one outbound streaming completion call.
type Request struct {
	Model       string
	Messages    []prompt.Message
	MaxTokens   int
	Temperature float64
}

// Chunk is one raw backend payload. Err is terminal: it is the last value
// sent before the channel closes.
type Chunk struct {
	Data json.RawMessage
	Err  error
}

// DeltaContent extracts the first choice's delta text from the raw payload.
// Returns the empty string when the payload has another shape; callers use
// this only for side-channel purposes (logging, LED), never to alter what is
// forwarded.
func (c Chunk) DeltaContent() string {
	var envelope struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(c.Data, &envelope); err != nil || len(envelope.Choices) == 0 {
		return ""
	}
	return envelope.Choices[0].Delta.Content
}

// Config for the backend client.
type Config struct {
	// BaseURL of the OpenAI-compatible API. Default: DefaultBaseURL.
	BaseURL string

	// APIKey sent as a bearer token. Empty means unauthenticated (tests,
	// relay-fronted deployments).
	APIKey string

	// Timeout for one full streaming call. Default: DefaultTimeout.
	Timeout time.Duration
}

// Client streams chat completions. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	httpc   *http.Client
	logger  log.Logger
}

// NewClient creates a backend client. Zero-value config fields fall back to
// the package defaults.
func NewClient(cfg Config, logger log.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		timeout: timeout,
		// No http.Client.Timeout: the per-call context deadline governs the
		// whole stream, reads included.
		httpc:  &http.Client{},
		logger: logger,
	}
}

// Configured reports whether an API key is set. Surfaced by health checks.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// streamRequest is the wire shape of the completion call.
type streamRequest struct {
	Model       string           `json:"model"`
	Messages    []prompt.Message `json:"messages"`
	Stream      bool             `json:"stream"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

// Stream opens a streaming completion call and returns a channel of raw
// chunks. The channel closes after the backend's end marker, after a
// terminal Err value, or once ctx is canceled. Errors before any stream is
// established are returned directly.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	body, err := json.Marshal(streamRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %w", ErrBackend, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: building request: %w", ErrBackend, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrBackend, err)
	}

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	ch := make(chan Chunk)
	go c.consume(ctx, callCtx, cancel, resp.Body, ch)
	return ch, nil
}

// consume reads the SSE body line by line and forwards data payloads until
// the end marker, a read error, or cancellation.
//
// Sends are guarded by the caller's context, not the call deadline: when the
// deadline expires the receiver is still draining and must see the terminal
// error, while a canceled caller has stopped receiving and the chunk would
// block forever.
func (c *Client) consume(parent, callCtx context.Context, cancel context.CancelFunc, body io.ReadCloser, ch chan<- Chunk) {
	defer close(ch)
	defer cancel()
	defer func() { _ = body.Close() }()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneMarker {
			return
		}
		select {
		case ch <- Chunk{Data: json.RawMessage(payload)}:
		case <-parent.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := callCtx.Err(); ctxErr != nil {
			err = ctxErr
		}
		c.logger.Warn("backend stream interrupted", "error", err)
		select {
		case ch <- Chunk{Err: fmt.Errorf("%w: reading stream: %w", ErrBackend, err)}:
		case <-parent.Done():
		}
	}
	// A clean EOF without the end marker closes the stream normally, the
	// same way the upstream SDKs treat it.
}
