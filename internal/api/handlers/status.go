package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/quantpulse/pulse/internal/coordinator"
	pkgredis "github.com/quantpulse/pulse/pkg/redis"
)

// StatusHandler serves read-only views: collaborator service health
// and the most recent scan snapshot.
type StatusHandler struct {
	coordinator *coordinator.Coordinator
	cache       *pkgredis.Cache
}

// NewStatusHandler creates a status handler. cache may be nil when
// Redis is not configured; scan lookups then report unavailable.
func NewStatusHandler(coord *coordinator.Coordinator, cache *pkgredis.Cache) *StatusHandler {
	return &StatusHandler{
		coordinator: coord,
		cache:       cache,
	}
}

// Services handles GET /api/services/status.
func (h *StatusHandler) Services(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"services": h.coordinator.ServiceStatus(),
	})
}

// LatestScan handles GET /api/scan/latest. The snapshot is read from
// the Redis cache written at the end of each funnel pass.
func (h *StatusHandler) LatestScan(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		respondError(w, http.StatusServiceUnavailable, "scan cache not configured")
		return
	}

	var snapshot json.RawMessage
	found, err := h.cache.Get(r.Context(), pkgredis.LatestScanKey(), &snapshot)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "scan cache lookup failed")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "no scan snapshot available")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot": snapshot,
	})
}
