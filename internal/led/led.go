// Package led talks to the kiosk's LED device service, the small HTTP
// daemon that drives the microphone array's light ring.
//
// The device is strictly best-effort: every call is short, bounded by a
// client timeout, and callers are expected to log failures rather than
// propagate them into a user-facing stream.
package led

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

	"github.com/mallhive/concierge/internal/emotion"
	"github.com/mallhive/concierge/internal/log"
)

// ErrDevice marks any failure talking to the LED service.
var ErrDevice = errors.New("led device error")

// DefaultTimeout bounds one device call.
const DefaultTimeout = 2 * time.Second

// defaultDuration is the animation length in seconds the device service
// itself defaults to.
const defaultDuration = 1.0

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 4096

// Status is the device service's health report.
type Status struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	USBAvailable bool   `json:"usb_available"`
	DeviceFound  bool   `json:"device_found"`
}

// Ready reports whether the light ring is present and usable.
func (s Status) Ready() bool {
	return s.Status == "ok" && s.DeviceFound
}

// Client is a lightweight LED service client.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  log.Logger
}

// New creates a client for the LED service at baseURL. A zero timeout falls
// back to DefaultTimeout.
func New(baseURL string, timeout time.Duration, logger log.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// animationRequest is the wire shape of the animation trigger.
type animationRequest struct {
	Emotion  string  `json:"emotion"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text,omitempty"`
}

// Animate plays the animation for label on the light ring. The optional
// text is echoed into the device log for correlation.
func (c *Client) Animate(ctx context.Context, label emotion.Label, text string) error {
	req := animationRequest{
		Emotion:  label.String(),
		Duration: defaultDuration,
		Text:     text,
	}
	if err := c.makeRequest(ctx, http.MethodPost, "/emotion", req, nil); err != nil {
		return err
	}
	c.logger.Debug("led animation triggered", "emotion", label, "color", fmt.Sprintf("%#06x", label.Color()))
	return nil
}

// DeviceStatus asks the service whether the light ring is present.
func (c *Client) DeviceStatus(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.makeRequest(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ReturnToDOA puts the ring back into direction-of-arrival mode, its idle
// behavior between answers.
func (c *Client) ReturnToDOA(ctx context.Context) error {
	return c.makeRequest(ctx, http.MethodPost, "/doa", nil, nil)
}

// makeRequest is a helper to call the device service.
func (c *Client) makeRequest(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %w", ErrDevice, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrDevice, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrDevice, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrDevice, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: unmarshal response: %w", ErrDevice, err)
		}
	}
	return nil
}
