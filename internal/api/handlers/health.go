package handlers

import (
	"net/http"
	"time"

	"github.com/quantpulse/pulse/pkg/database"
	pkgredis "github.com/quantpulse/pulse/pkg/redis"
)

// HealthHandler reports process liveness plus backing-store health.
type HealthHandler struct {
	db    *database.DB
	redis *pkgredis.Client
	start time.Time
}

// NewHealthHandler creates a health handler. db and redis may be nil
// in degraded or test configurations.
func NewHealthHandler(db *database.DB, redis *pkgredis.Client) *HealthHandler {
	return &HealthHandler{
		db:    db,
		redis: redis,
		start: time.Now(),
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.db != nil {
		if _, err := h.db.HealthCheck(r.Context()); err != nil {
			checks["postgres"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	respondJSON(w, status, map[string]interface{}{
		"status":    state,
		"uptime":    time.Since(h.start).Round(time.Second).String(),
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}
