package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/despairhw/tourneycast/internal/dispatch"
)

// Service ties the display transport together: WebSocket upgrades, the
// pollable fallback endpoint, and the operational stats surface.
type Service struct {
	manager       *ConnectionManager
	store         *FallbackStore
	statsFn       func() dispatch.Stats
	fallbackDelay time.Duration
}

// NewService creates the gateway service. statsFn supplies the dispatcher's
// counters for the stats endpoint.
func NewService(manager *ConnectionManager, store *FallbackStore, statsFn func() dispatch.Stats, fallbackDelay time.Duration) *Service {
	return &Service{
		manager:       manager,
		store:         store,
		statsFn:       statsFn,
		fallbackDelay: fallbackDelay,
	}
}

// RegisterRoutes registers the gateway's HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/display", s.HandleDisplayConnection)
	mux.HandleFunc("/api/display/", s.HandleDisplayPending)
	mux.HandleFunc("/api/stats", s.HandleStats)
	mux.HandleFunc("/healthz", s.HandleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	log.Info().Msg("gateway routes registered")
}

// HandleDisplayConnection upgrades a display client identified by the
// display_id query parameter.
func (s *Service) HandleDisplayConnection(w http.ResponseWriter, r *http.Request) {
	displayID := r.URL.Query().Get("display_id")
	if displayID == "" {
		http.Error(w, "display_id is required", http.StatusBadRequest)
		return
	}

	if err := s.manager.UpgradeConnection(w, r, displayID); err != nil {
		log.Error().
			Err(err).
			Str("display_id", displayID).
			Msg("failed to upgrade display connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// pendingResponse is the pollable fallback document for one display.
type pendingResponse struct {
	DisplayID      string                      `json:"display_id"`
	FallbackNeeded bool                        `json:"fallback_needed"`
	Messages       []*dispatch.OutboundMessage `json:"messages"`
}

// HandleDisplayPending serves GET /api/display/{id}/pending: it drains the
// display's fallback backlog and reports whether the real-time channel looks
// unhealthy per the fallback predicate. Displays poll this when their socket
// is down or silent.
func (s *Service) HandleDisplayPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/display/")
	displayID, op, ok := strings.Cut(rest, "/")
	if !ok || op != "pending" || displayID == "" {
		http.NotFound(w, r)
		return
	}

	status := s.manager.DeliveryStatus(s.fallbackDelay)
	resp := pendingResponse{
		DisplayID:      displayID,
		FallbackNeeded: dispatch.NeedsHTTPFallback(status, time.Now()),
		Messages:       s.store.Drain(displayID),
	}
	if resp.Messages == nil {
		resp.Messages = []*dispatch.OutboundMessage{}
	}

	writeJSON(w, resp)
}

// statsResponse merges delivery counters with live connection info.
type statsResponse struct {
	Dispatch    dispatch.Stats  `json:"dispatch"`
	Connections ConnectionStats `json:"connections"`
}

// HandleStats serves the operational stats snapshot.
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Connections: s.manager.GetConnectionStats(),
	}
	if s.statsFn != nil {
		resp.Dispatch = s.statsFn()
	}
	writeJSON(w, resp)
}

// HandleHealth is a plain liveness probe.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
