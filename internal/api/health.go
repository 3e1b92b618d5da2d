package api

import (
	"net/http"

	"github.com/mallhive/concierge/internal/backend"
	"github.com/mallhive/concierge/internal/corpus"
	"github.com/mallhive/concierge/internal/log"
)

// healthResponse reports readiness for container probes and kiosk
// dashboards. A relay with no corpus or no backend key still answers 200,
// it just degrades to apology streams, so the flags matter more than the
// status code.
type healthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	CorpusLoaded      bool   `json:"corpus_loaded"`
	CorpusSize        int64  `json:"corpus_size"`
	BackendConfigured bool   `json:"backend_configured"`
}

type healthHandler struct {
	store   *corpus.Store
	backend *backend.Client
	version string
	logger  log.Logger
}

func (h *healthHandler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:            "ok",
		Version:           h.version,
		CorpusLoaded:      h.store.Loaded(),
		CorpusSize:        h.store.Size(),
		BackendConfigured: h.backend != nil && h.backend.Configured(),
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}
