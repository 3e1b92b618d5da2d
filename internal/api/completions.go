package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mallhive/concierge/internal/log"
	"github.com/mallhive/concierge/internal/relay"
)

// maxRequestBytes limits the completion request body size.
const maxRequestBytes = 1024 * 1024

// completionsHandler serves POST /chat/completions.
type completionsHandler struct {
	relay  *relay.Relay
	logger log.Logger
}

// completions handles OpenAI-compatible streaming chat completion requests.
//
// Validation failures are reported as plain JSON errors. Once the request is
// accepted the response switches to SSE and every later failure, corpus,
// backend, or mid-stream, surfaces as a single in-band apology chunk
// followed by the [DONE] marker. The voice agent upstream only understands
// the streaming wire format, so that split is load-bearing.
func (h *completionsHandler) completions(w http.ResponseWriter, r *http.Request) {
	var req relay.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		if errors.Is(err, relay.ErrStreamRequired) {
			writeError(w, http.StatusBadRequest, "streaming_required", "Streaming required", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	requestID, _ := RequestIDFromContext(r.Context())
	h.logger.Debug("completion stream started", "request_id", requestID)

	state := h.relay.Run(r.Context(), req, w, flusher)

	h.logger.Debug("completion stream finished",
		"request_id", requestID,
		"state", state,
	)
}
