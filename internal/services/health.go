package services

import (
	"sync"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
)

// HealthRegistry tracks per-collaborator health, refreshed by every
// call and by the scheduled probe. It backs the get-service-status
// control-plane endpoint.
type HealthRegistry struct {
	mu     sync.RWMutex
	status map[contracts.ServiceName]contracts.ServiceHealth
}

// NewHealthRegistry creates a registry seeded with every collaborator
// in an unknown-unhealthy state.
func NewHealthRegistry() *HealthRegistry {
	status := make(map[contracts.ServiceName]contracts.ServiceHealth)
	for _, svc := range contracts.AllServices() {
		status[svc] = contracts.ServiceHealth{Service: svc}
	}
	return &HealthRegistry{status: status}
}

// Record updates one collaborator's health from a call outcome.
func (r *HealthRegistry) Record(service contracts.ServiceName, healthy bool, lastError string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status[service] = contracts.ServiceHealth{
		Service:     service,
		Healthy:     healthy,
		LastChecked: time.Now(),
		LastError:   lastError,
		LastLatency: latency.String(),
	}
}

// Get returns one collaborator's health.
func (r *HealthRegistry) Get(service contracts.ServiceName) (contracts.ServiceHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.status[service]
	return h, ok
}

// All returns every collaborator's health, in canonical order.
func (r *HealthRegistry) All() []contracts.ServiceHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.ServiceHealth, 0, len(r.status))
	for _, svc := range contracts.AllServices() {
		out = append(out, r.status[svc])
	}
	return out
}
