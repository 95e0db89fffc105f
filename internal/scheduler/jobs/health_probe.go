package jobs

import (
	"context"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/services"
	"github.com/quantpulse/pulse/pkg/logger"
	pkgredis "github.com/quantpulse/pulse/pkg/redis"
)

// HealthProbeJob pings every collaborator service and caches the
// result, so status queries do not generate probe traffic themselves.
type HealthProbeJob struct {
	caller *services.Caller
	cache  *pkgredis.Cache
	logger *logger.Logger
}

// NewHealthProbeJob creates the collaborator health probe.
// cache may be nil; results then live only in the in-memory registry.
func NewHealthProbeJob(caller *services.Caller, cache *pkgredis.Cache, log *logger.Logger) *HealthProbeJob {
	return &HealthProbeJob{
		caller: caller,
		cache:  cache,
		logger: log,
	}
}

func (j *HealthProbeJob) Name() string {
	return "collaborator_health_probe"
}

// Schedule runs every minute.
func (j *HealthProbeJob) Schedule() string {
	return "0 * * * * *"
}

func (j *HealthProbeJob) Run(ctx context.Context) error {
	for _, service := range contracts.AllServices() {
		result := j.caller.Ping(ctx, service)

		if !result.Success {
			j.logger.WithFields(map[string]interface{}{
				"service": string(service),
				"kind":    string(result.ErrorKind),
			}).Warn("Collaborator health probe failed")
		}

		if j.cache != nil {
			key := pkgredis.ServiceHealthKey(string(service))
			_ = j.cache.Set(ctx, key, result, pkgredis.TTLLong)
		}
	}
	return nil
}
