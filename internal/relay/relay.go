// Package relay drives one retrieval-augmented chat completion per request:
// it resolves corpus context for the latest user message, composes the
// persona prompt, opens a streaming backend call, and forwards the backend's
// chunks over SSE in arrival order.
//
// Each request moves through a fixed state machine,
// Idle -> ContextRetrieved -> BackendStreaming -> Completed/Failed.
// Once the SSE stream is open, any failure (a corpus that would not load, a
// refused backend call, an interruption mid-stream) is surfaced to the
// caller as a single synthetic apology chunk followed by the end-of-stream
// marker, never as a bare protocol error and never via retry.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mallhive/concierge/internal/backend"
	"github.com/mallhive/concierge/internal/corpus"
	"github.com/mallhive/concierge/internal/emotion"
	"github.com/mallhive/concierge/internal/log"
	"github.com/mallhive/concierge/internal/prompt"
	"github.com/mallhive/concierge/internal/retrieval"
)

// ErrStreamRequired is returned when a request explicitly opts out of
// streaming. The relay only speaks SSE, so this must be rejected before any
// corpus or backend work begins.
var ErrStreamRequired = errors.New("streaming required")

// Defaults applied to request fields the caller omitted.
const (
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

// rawContextLimit caps the raw-corpus excerpt used when no fragments are
// available for a query.
const rawContextLimit = 500

// Request is the inbound chat completion call, wire-compatible with the
// OpenAI chat completions request shape. Pointer fields distinguish
// "omitted" from an explicit zero.
type Request struct {
	Model       string           `json:"model"`
	Messages    []prompt.Message `json:"messages"`
	Stream      *bool            `json:"stream"`
	MaxTokens   *int             `json:"max_tokens"`
	Temperature *float64         `json:"temperature"`
}

// StreamRequested reports whether the caller asked for a streaming response.
// Absent means yes; only an explicit false opts out.
func (r Request) StreamRequested() bool {
	return r.Stream == nil || *r.Stream
}

// Validate rejects requests the relay cannot serve. It runs before any
// corpus or backend work.
func (r Request) Validate() error {
	if !r.StreamRequested() {
		return ErrStreamRequired
	}
	return nil
}

// model returns the requested model or the default.
func (r Request) model() string {
	if r.Model == "" {
		return DefaultModel
	}
	return r.Model
}

// State identifies where a request is in its lifecycle. Completed and
// Failed are terminal.
type State int

const (
	StateIdle State = iota
	StateContextRetrieved
	StateBackendStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateContextRetrieved:
		return "context_retrieved"
	case StateBackendStreaming:
		return "backend_streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Streamer is the streaming completion backend.
type Streamer interface {
	Stream(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error)
}

// EmotionFunc receives the emotion label detected at the head of a streamed
// response. Implementations must not block; the relay calls it inline
// between chunk writes.
type EmotionFunc func(emotion.Label)

// Config assembles a Relay.
type Config struct {
	// Store holds the knowledge corpus. Required.
	Store *corpus.Store

	// Backend streams completions. Required.
	Backend Streamer

	// Logger for request lifecycle events. Defaults to a no-op logger.
	Logger log.Logger

	// OnEmotion, when set, is called once per response with the leading
	// emotion label, as soon as enough of the stream has arrived to decide.
	OnEmotion EmotionFunc
}

// Relay runs chat completion requests. Safe for concurrent use; every
// request owns its own state.
type Relay struct {
	store     *corpus.Store
	backend   Streamer
	logger    log.Logger
	tracer    trace.Tracer
	onEmotion EmotionFunc
}

// New creates a Relay from the config.
func New(cfg Config) (*Relay, error) {
	if cfg.Store == nil {
		return nil, errors.New("relay: corpus store is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("relay: backend is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Relay{
		store:     cfg.Store,
		backend:   cfg.Backend,
		logger:    logger,
		tracer:    otel.Tracer("github.com/mallhive/concierge/internal/relay"),
		onEmotion: cfg.OnEmotion,
	}, nil
}

// Run drives one completion over an already-opened SSE stream and returns
// the terminal state. The caller validates the request and sets the SSE
// headers first; Run only ever writes SSE frames to w.
func (rl *Relay) Run(ctx context.Context, req Request, w io.Writer, flusher http.Flusher) State {
	ctx, span := rl.tracer.Start(ctx, "relay.completion")
	defer span.End()

	model := req.model()
	span.SetAttributes(attribute.String("gen_ai.request.model", model))

	state := StateIdle

	retrievedContext, fragments, err := rl.retrieveContext(req)
	if err != nil {
		rl.logger.Error("corpus unavailable", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "corpus unavailable")
		return rl.fail(w, flusher, model)
	}
	state = StateContextRetrieved
	rl.logger.Debug("context retrieved", "state", state, "fragments", fragments, "context_chars", len(retrievedContext))
	span.SetAttributes(attribute.Int("relay.fragments", fragments))

	ch, err := rl.backend.Stream(ctx, backend.Request{
		Model:       model,
		Messages:    prompt.Compose(req.Messages, retrievedContext),
		MaxTokens:   valueOr(req.MaxTokens, DefaultMaxTokens),
		Temperature: valueOr(req.Temperature, DefaultTemperature),
	})
	if err != nil {
		rl.logger.Error("backend call refused", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend call refused")
		return rl.fail(w, flusher, model)
	}
	state = StateBackendStreaming
	rl.logger.Debug("backend streaming", "state", state, "model", model)

	var sniffer emotion.Sniffer
	forwarded := 0
	for chunk := range ch {
		select {
		case <-ctx.Done():
			rl.logger.Info("client disconnected", "chunks", forwarded)
			return StateFailed
		default:
		}

		if chunk.Err != nil {
			if ctx.Err() != nil {
				rl.logger.Info("client disconnected", "chunks", forwarded)
				return StateFailed
			}
			rl.logger.Error("backend stream failed", "error", chunk.Err, "chunks", forwarded)
			span.RecordError(chunk.Err)
			span.SetStatus(codes.Error, "backend stream failed")
			return rl.fail(w, flusher, model)
		}

		if err := writeData(w, flusher, chunk.Data); err != nil {
			rl.logger.Warn("chunk write failed, caller gone", "error", err, "chunks", forwarded)
			return StateFailed
		}
		forwarded++

		if rl.onEmotion != nil {
			if label, ok := sniffer.Feed(chunk.DeltaContent()); ok {
				rl.onEmotion(label)
			}
		}
	}

	if ctx.Err() != nil {
		rl.logger.Info("client disconnected", "chunks", forwarded)
		return StateFailed
	}
	if err := writeDone(w, flusher); err != nil {
		rl.logger.Warn("end marker write failed", "error", err)
		return StateFailed
	}
	state = StateCompleted
	rl.logger.Info("stream completed", "state", state, "model", model, "chunks", forwarded)
	span.SetAttributes(attribute.Int("relay.chunks", forwarded))
	return state
}

// retrieveContext resolves the corpus context for the request's latest user
// message. When the corpus splits into no usable fragments, the head of the
// raw text stands in so the model still sees something grounding.
func (rl *Relay) retrieveContext(req Request) (string, int, error) {
	c, err := rl.store.Corpus()
	if err != nil {
		return "", 0, err
	}
	query := prompt.LastUserContent(req.Messages)
	fragments := retrieval.Search(query, c)
	if len(fragments) == 0 {
		return truncateRunes(c.Text, rawContextLimit), 0, nil
	}
	return retrieval.ContextText(fragments), len(fragments), nil
}

// apologyText is the exact content of the synthetic chunk emitted on
// failure. It carries the sad persona tag and points at a staffed desk.
const apologyText = "[sad] I apologize, I'm having trouble right now. Please ask at the information desk on the ground floor."

// The synthetic chunk mirrors the OpenAI chat.completion.chunk shape; real
// backend chunks pass through as raw bytes and never touch these types.
type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type syntheticChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

func apologyChunk(model string, now time.Time) syntheticChunk {
	return syntheticChunk{
		ID:      "error_msg",
		Object:  "chat.completion.chunk",
		Created: now.Unix(),
		Model:   model,
		Choices: []chunkChoice{{
			Index:        0,
			Delta:        chunkDelta{Role: prompt.RoleAssistant, Content: apologyText},
			FinishReason: "stop",
		}},
	}
}

// fail converts a terminal error into the single apology chunk plus the end
// marker. The SSE contract is already open at this point, so the stream must
// still end with the marker the caller is waiting for.
func (rl *Relay) fail(w io.Writer, flusher http.Flusher, model string) State {
	payload, err := json.Marshal(apologyChunk(model, time.Now()))
	if err == nil {
		if werr := writeData(w, flusher, payload); werr != nil {
			return StateFailed
		}
	}
	_ = writeDone(w, flusher)
	return StateFailed
}

// writeData writes one SSE data frame and flushes it through immediately.
func writeData(w io.Writer, flusher http.Flusher, payload []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	flusher.Flush()
	return nil
}

// writeDone writes the end-of-stream marker.
func writeDone(w io.Writer, flusher http.Flusher) error {
	if _, err := io.WriteString(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write end marker: %w", err)
	}
	flusher.Flush()
	return nil
}

func valueOr[T any](p *T, fallback T) T {
	if p != nil {
		return *p
	}
	return fallback
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
