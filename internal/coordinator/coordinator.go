package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/cycle"
	"github.com/quantpulse/pulse/internal/funnel"
	"github.com/quantpulse/pulse/internal/metrics"
	"github.com/quantpulse/pulse/internal/risk"
	"github.com/quantpulse/pulse/internal/services"
	"github.com/quantpulse/pulse/pkg/config"
	"github.com/quantpulse/pulse/pkg/logger"
	"github.com/quantpulse/pulse/pkg/redis"
)

// SnapshotStore persists funnel snapshots. cycle.Repository satisfies
// it; tests pass nil.
type SnapshotStore interface {
	SaveFunnelSnapshot(ctx context.Context, cycleID string, candidates []contracts.Candidate) error
}

// Coordinator drives the trading workflow: it owns the single active
// cycle, runs the periodic tick, and is the only writer of cycle state.
// The risk ledger is the only mutable state shared with other
// goroutines (the fill stream); everything else is coordinator-owned.
type Coordinator struct {
	cfg     *config.Config
	machine *cycle.Machine
	funnel  *funnel.Funnel
	stepLog *cycle.StepLog
	store   SnapshotStore
	cache   *redis.Cache
	metrics *metrics.Registry
	health  *services.HealthRegistry
	logger  *logger.Logger

	caller    *services.Caller
	scan      *services.ScanClient
	news      *services.NewsClient
	pattern   *services.PatternClient
	technical *services.TechnicalClient
	riskSvc   *services.RiskClient
	execution *services.ExecutionClient
	fills     *services.FillStream

	fillURL string

	// Per-cycle state, owned by the coordinator between Start and stop.
	mu       sync.Mutex
	ledger   *risk.Ledger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce *sync.Once
	running  bool
}

// Deps bundles everything the coordinator needs.
type Deps struct {
	Config    *config.Config
	Machine   *cycle.Machine
	Funnel    *funnel.Funnel
	StepLog   *cycle.StepLog
	Store     SnapshotStore
	Cache     *redis.Cache
	Metrics   *metrics.Registry
	Health    *services.HealthRegistry
	Caller    *services.Caller
	FillURL   string
	Logger    *logger.Logger
}

// New creates a coordinator.
func New(deps Deps) *Coordinator {
	c := &Coordinator{
		cfg:     deps.Config,
		machine: deps.Machine,
		funnel:  deps.Funnel,
		stepLog: deps.StepLog,
		store:   deps.Store,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		health:  deps.Health,
		logger:  deps.Logger,
		caller:  deps.Caller,
		fillURL: deps.FillURL,
	}

	c.scan = services.NewScanClient(deps.Caller)
	c.news = services.NewNewsClient(deps.Caller)
	c.pattern = services.NewPatternClient(deps.Caller)
	c.technical = services.NewTechnicalClient(deps.Caller)
	c.riskSvc = services.NewRiskClient(deps.Caller)
	c.execution = services.NewExecutionClient(deps.Caller)

	return c
}

// StartCycle validates settings, initializes collaborators, and starts
// the tick loop. The scan source is mandatory: its failure aborts the
// start and reverts to idle. Other collaborators degrade gracefully.
// A start is refused while a previous cycle's tick loop is still
// draining, so at most one loop ever runs.
func (c *Coordinator) StartCycle(ctx context.Context, settings contracts.CycleSettings) (*contracts.TradingCycle, error) {
	c.mu.Lock()
	prevDone := c.doneCh
	c.mu.Unlock()
	if prevDone != nil {
		select {
		case <-prevDone:
		default:
			return nil, contracts.NewValidationError("previous cycle is still shutting down")
		}
	}

	started, err := c.machine.Start(ctx, settings,
		c.cfg.Cycle.MinScanFrequency, c.cfg.Cycle.MaxScanFrequency)
	if err != nil {
		return nil, err
	}

	// Initialization: ping every collaborator, in canonical order.
	for _, svc := range contracts.AllServices() {
		result := c.caller.Ping(ctx, svc)
		if result.Success {
			continue
		}

		if svc == contracts.ServiceScan {
			initErr := &contracts.InitFailureError{
				Service: svc,
				Err:     &contracts.CollaboratorUnavailableError{Service: svc, Kind: result.ErrorKind, Detail: result.Error},
			}
			c.machine.AbortStart(ctx, initErr)
			return nil, initErr
		}

		c.logger.WithFields(map[string]interface{}{
			"service":    svc,
			"error_kind": result.ErrorKind,
		}).Warn("Optional collaborator unavailable at cycle start, degrading")
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	c.mu.Lock()
	c.ledger = risk.NewLedger(settings.TotalRiskBudget, settings.MaxPositions)
	c.stopCh = stopCh
	c.doneCh = doneCh
	c.stopOnce = new(sync.Once)
	c.fills = services.NewFillStream(c.fillURL, c.logger)
	c.running = true
	c.mu.Unlock()

	if err := c.machine.Activate(ctx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return nil, err
	}

	c.wireFillStream(ctx)
	c.metrics.ActiveCycle.Set(1)

	go c.runLoop(settings.ScanFrequency, stopCh, doneCh)

	c.logger.WithField("cycle_id", started.CycleID).Info("Trading cycle started")
	return c.machine.Current(), nil
}

// StopCycle requests a graceful stop. In-flight execution calls finish;
// no further candidates are processed once the stop is observed.
// Calling it twice is safe: the second call reports ErrNoActiveCycle.
func (c *Coordinator) StopCycle(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return contracts.ErrNoActiveCycle
	}
	stopCh, doneCh, once := c.stopCh, c.doneCh, c.stopOnce
	c.mu.Unlock()

	if err := c.machine.BeginStop(ctx); err != nil {
		return err
	}

	once.Do(func() { close(stopCh) })

	select {
	case <-doneCh:
	case <-time.After(2 * c.cfg.Services.Execution.Timeout):
		c.logger.Warn("Tick loop did not stop within grace period")
	}

	c.teardown()

	if err := c.machine.FinishStop(ctx); err != nil {
		return err
	}

	c.logger.Info("Trading cycle stopped")
	return nil
}

// EmergencyStop closes all positions via the execution venue and
// forces the cycle into emergency_stopped regardless of in-flight work.
func (c *Coordinator) EmergencyStop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return contracts.ErrNoActiveCycle
	}
	stopCh, once := c.stopCh, c.stopOnce
	c.mu.Unlock()

	once.Do(func() { close(stopCh) })

	closed, result := c.execution.CloseAllPositions(ctx, "emergency stop", 0)
	if !result.Success {
		// The venue call failed; the stop still proceeds. Operators see
		// the failure in the step log and service health.
		c.logger.WithFields(map[string]interface{}{
			"error_kind": result.ErrorKind,
			"error":      result.Error,
		}).Error("Close-all failed during emergency stop")
	} else {
		c.logger.WithField("closed_positions", closed).Warn("Emergency stop closed all positions")
	}

	cur := c.machine.Current()
	if cur != nil {
		c.stepLog.Record(ctx, contracts.StepRecord{
			CycleID: cur.CycleID,
			Step:    contracts.StepExecution,
			Outcome: outcomeFor(result.Success),
			Detail:  "emergency stop",
		})
	}

	c.teardown()
	return c.machine.EmergencyStop(ctx)
}

// UpdateSettings applies a config change to the running cycle. The new
// scan frequency takes effect on the next loop restart; score and risk
// parameters apply from the next tick.
func (c *Coordinator) UpdateSettings(ctx context.Context, settings contracts.CycleSettings) error {
	return c.machine.UpdateSettings(ctx, settings,
		c.cfg.Cycle.MinScanFrequency, c.cfg.Cycle.MaxScanFrequency)
}

// CurrentCycle returns the cycle record, or nil when idle.
func (c *Coordinator) CurrentCycle() *contracts.TradingCycle {
	return c.machine.Current()
}

// ServiceStatus returns per-collaborator health.
func (c *Coordinator) ServiceStatus() []contracts.ServiceHealth {
	return c.health.All()
}

// LedgerSnapshot returns the active ledger state, or a zero snapshot
// when idle.
func (c *Coordinator) LedgerSnapshot() risk.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ledger == nil {
		return risk.Snapshot{}
	}
	return c.ledger.Snapshot()
}

// runLoop drives periodic ticks until stopped. One coordinating
// goroutine per active cycle; a new tick never starts while the
// previous tick is still running. The loop owns its stop and done
// channels so a loop that outlives its cycle's grace period never
// touches a successor cycle's channels.
func (c *Coordinator) runLoop(frequency time.Duration, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(frequency)
	defer ticker.Stop()

	// First tick runs immediately.
	c.safeTick()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.safeTick()
		}
	}
}

func (c *Coordinator) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("Tick panicked")
			c.metrics.TickDuration.WithLabelValues("panic").Observe(0)
		}
	}()

	start := time.Now()
	result := c.runTick(context.Background())
	c.metrics.TickDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

// stopRequested is checked at every suspension point so stop and
// emergency signals are observed promptly.
func (c *Coordinator) stopRequested() bool {
	c.mu.Lock()
	stopCh := c.stopCh
	c.mu.Unlock()

	if stopCh == nil {
		return true
	}
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

func (c *Coordinator) wireFillStream(ctx context.Context) {
	if !c.fills.Enabled() {
		return
	}

	c.fills.OnFill(func(event contracts.FillEvent) {
		c.mu.Lock()
		ledger := c.ledger
		c.mu.Unlock()
		if ledger == nil {
			return
		}

		// Sell fills release exposure; buy fills were already committed
		// at submission time.
		if event.Side == contracts.OrderSideSell {
			notional := event.FillPrice * float64(event.Qty)
			ledger.ClosePosition(0, notional)
		}

		c.logger.WithFields(map[string]interface{}{
			"order_id": event.OrderID,
			"symbol":   event.Symbol,
			"side":     event.Side,
			"qty":      event.Qty,
			"price":    event.FillPrice,
		}).Info("Fill received")
	})

	if err := c.fills.Start(ctx); err != nil {
		c.logger.WithError(err).Warn("Fill stream unavailable, continuing without it")
	}
}

func (c *Coordinator) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false
	c.metrics.ActiveCycle.Set(0)

	if c.fills != nil && c.fills.Enabled() {
		c.fills.Stop()
	}
}

func outcomeFor(success bool) contracts.StepOutcome {
	if success {
		return contracts.StepOK
	}
	return contracts.StepFailed
}
