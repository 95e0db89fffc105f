package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantpulse/pulse/internal/api/handlers"
	"github.com/quantpulse/pulse/internal/coordinator"
	"github.com/quantpulse/pulse/internal/metrics"
	"github.com/quantpulse/pulse/pkg/config"
	"github.com/quantpulse/pulse/pkg/database"
	"github.com/quantpulse/pulse/pkg/logger"
	pkgredis "github.com/quantpulse/pulse/pkg/redis"
)

// RouterDeps carries everything the HTTP surface needs.
type RouterDeps struct {
	Config      *config.Config
	Coordinator *coordinator.Coordinator
	DB          *database.DB
	Redis       *pkgredis.Client
	Cache       *pkgredis.Cache
	Metrics     *metrics.Registry
	Logger      *logger.Logger
}

// NewRouter builds the HTTP router with all routes and middleware.
func NewRouter(deps RouterDeps) *mux.Router {
	r := mux.NewRouter()

	r.Use(recoveryMiddleware(deps.Logger))
	r.Use(loggingMiddleware(deps.Logger))

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis)
	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()

	cycleHandler := handlers.NewCycleHandler(deps.Coordinator, deps.Config.Cycle, deps.Logger)
	api.HandleFunc("/cycle/start", cycleHandler.Start).Methods(http.MethodPost)
	api.HandleFunc("/cycle/stop", cycleHandler.Stop).Methods(http.MethodPost)
	api.HandleFunc("/cycle/emergency-stop", cycleHandler.EmergencyStop).Methods(http.MethodPost)
	api.HandleFunc("/cycle/config", cycleHandler.UpdateConfig).Methods(http.MethodPut)
	api.HandleFunc("/cycle", cycleHandler.Get).Methods(http.MethodGet)

	statusHandler := handlers.NewStatusHandler(deps.Coordinator, deps.Cache)
	api.HandleFunc("/services/status", statusHandler.Services).Methods(http.MethodGet)
	api.HandleFunc("/scan/latest", statusHandler.LatestScan).Methods(http.MethodGet)

	return r
}

// loggingMiddleware logs every request with method, path, status and latency.
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware converts handler panics into 500 responses.
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithField("panic", rec).Error("Handler panic recovered")
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
