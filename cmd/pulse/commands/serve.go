package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantpulse/pulse/internal/api"
	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/coordinator"
	"github.com/quantpulse/pulse/internal/cycle"
	"github.com/quantpulse/pulse/internal/funnel"
	"github.com/quantpulse/pulse/internal/metrics"
	"github.com/quantpulse/pulse/internal/scheduler"
	"github.com/quantpulse/pulse/internal/scheduler/jobs"
	"github.com/quantpulse/pulse/internal/services"
	"github.com/quantpulse/pulse/pkg/config"
	"github.com/quantpulse/pulse/pkg/database"
	"github.com/quantpulse/pulse/pkg/logger"
	pkgredis "github.com/quantpulse/pulse/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the workflow coordinator and control API",
	Long: `Starts the trading workflow coordinator with its HTTP control API.

This command:
- Connects to Postgres and Redis
- Starts the cycle coordinator (idle until a cycle is started)
- Starts the maintenance scheduler
- Serves the control API

Endpoints:
  POST /api/cycle/start          - Start a trading cycle
  POST /api/cycle/stop           - Stop the active cycle
  POST /api/cycle/emergency-stop - Halt and close all positions
  PUT  /api/cycle/config         - Update cycle settings
  GET  /api/cycle                - Current cycle and risk ledger
  GET  /api/services/status      - Collaborator health
  GET  /api/scan/latest          - Most recent funnel snapshot
  GET  /health                   - Health check

Example:
  go run ./cmd/pulse serve
  go run ./cmd/pulse serve --port 8080`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API server port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Pulse Workflow Coordinator ===")

	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)
	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing coordinator")

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Connected to database")

	redisClient, err := pkgredis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	var cache *pkgredis.Cache
	var limiter *pkgredis.RateLimiter
	if redisClient.Enabled() {
		cache = pkgredis.NewCache(redisClient, "pulse")
		limiter = pkgredis.NewRateLimiter(redisClient, "pulse")
		log.Info("Connected to redis")
	} else {
		log.Warn("Redis disabled, using local rate limiting")
	}

	reg := metrics.NewRegistry()

	health := services.NewHealthRegistry()
	caller := services.NewCaller(cfg, log, limiter, health)

	repo := cycle.NewRepository(db.Pool)
	machine := cycle.NewMachine(repo, log)
	stepLog := cycle.NewStepLog(repo, log)

	funnelCfg := funnel.DefaultConfig()
	funnelCfg.UniverseSize = cfg.Cycle.UniverseSize
	funnelCfg.TrackedSize = cfg.Cycle.TrackedSize
	funnelCfg.CatalystSize = cfg.Cycle.CatalystSize
	funnelCfg.FinalSize = cfg.Cycle.FinalSize

	coord := coordinator.New(coordinator.Deps{
		Config:  cfg,
		Machine: machine,
		Funnel:  funnel.New(funnelCfg, log),
		StepLog: stepLog,
		Store:   repo,
		Cache:   cache,
		Metrics: reg,
		Health:  health,
		Caller:  caller,
		FillURL: cfg.Services.FillStreamURL,
		Logger:  log,
	})

	sched := scheduler.New(log)
	schedulerJobs := []scheduler.Job{
		jobs.NewMaintenanceJob(repo, log),
		jobs.NewHealthProbeJob(caller, cache, log),
		jobs.NewEndOfDayJob(coord, log),
	}
	for _, job := range schedulerJobs {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("register job: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	routerDeps := api.RouterDeps{
		Config:      cfg,
		Coordinator: coord,
		DB:          db,
		Redis:       redisClient,
		Cache:       cache,
		Logger:      log,
	}
	if cfg.MetricsEnabled {
		routerDeps.Metrics = reg
	}
	router := api.NewRouter(routerDeps)

	server := api.NewServer(cfg.Port, router, log)
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	if cfg.MetricsEnabled && cfg.MetricsPort != "" && cfg.MetricsPort != cfg.Port {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", reg.Handler())
			log.WithField("port", cfg.MetricsPort).Info("Metrics server starting")
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	fmt.Printf("\nServer running on http://localhost:%s\n", cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop any active cycle before the API goes away.
	if err := coord.StopCycle(shutdownCtx); err != nil && !isNoActiveCycle(err) {
		log.WithError(err).Warn("Cycle stop during shutdown failed")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

func isNoActiveCycle(err error) bool {
	return errors.Is(err, contracts.ErrNoActiveCycle)
}
