package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/cycle"
	"github.com/quantpulse/pulse/internal/funnel"
	"github.com/quantpulse/pulse/internal/metrics"
	"github.com/quantpulse/pulse/internal/services"
	"github.com/quantpulse/pulse/pkg/config"
	"github.com/quantpulse/pulse/pkg/logger"
)

// fakeVenue is an httptest-backed stand-in for every collaborator.
// Behavior toggles control the failure scenarios.
type fakeVenue struct {
	server *httptest.Server

	scanDown       atomic.Bool
	newsDown       atomic.Bool
	riskRejects    atomic.Bool
	venueRejects   atomic.Bool
	analyzeDelayMs atomic.Int64

	checkCalls  atomic.Int64
	orderCalls  atomic.Int64
	closeAlls   atomic.Int64
}

func newFakeVenue() *fakeVenue {
	v := &fakeVenue{}
	v.server = httptest.NewServer(http.HandlerFunc(v.handle))
	return v
}

func (v *fakeVenue) handle(w http.ResponseWriter, r *http.Request) {
	writeJSON := func(data interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(data)
	}

	switch r.URL.Path {
	case "/health":
		if v.scanDown.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)

	case "/scan":
		if v.scanDown.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		rows := []contracts.ScanRow{
			{Symbol: "AAPL", Price: 50, Volume: 5_000_000, ChangePct: 8},
			{Symbol: "MSFT", Price: 60, Volume: 4_000_000, ChangePct: 7},
			{Symbol: "NVDA", Price: 70, Volume: 6_000_000, ChangePct: 6},
		}
		writeJSON(map[string]interface{}{"rows": rows})

	case "/catalysts":
		if v.newsDown.Load() {
			http.Error(w, "news exploded", http.StatusInternalServerError)
			return
		}
		events := []contracts.Catalyst{
			{Symbol: "AAPL", Headline: "earnings beat", Strength: 90, Sentiment: 1},
			{Symbol: "MSFT", Headline: "contract win", Strength: 85, Sentiment: 0.8},
			{Symbol: "NVDA", Headline: "guidance raise", Strength: 88, Sentiment: 0.9},
		}
		writeJSON(map[string]interface{}{"catalysts": events})

	case "/detect":
		writeJSON(map[string]interface{}{"patterns": []contracts.PatternMatch{
			{PatternName: "bull flag", Direction: "bullish", Confidence: 80},
		}})

	case "/analyze":
		if d := v.analyzeDelayMs.Load(); d > 0 {
			time.Sleep(time.Duration(d) * time.Millisecond)
		}
		var req struct {
			Symbol string `json:"symbol"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		writeJSON(contracts.TechnicalResult{
			Symbol:     req.Symbol,
			Trend:      "up",
			Indicators: map[string]float64{"rsi": 60},
			Support:    48,
		})

	case "/check":
		v.checkCalls.Add(1)
		if v.riskRejects.Load() {
			writeJSON(contracts.RiskCheckResult{Approved: false, Reason: "sector exposure"})
			return
		}
		writeJSON(contracts.RiskCheckResult{Approved: true})

	case "/orders":
		v.orderCalls.Add(1)
		if v.venueRejects.Load() {
			writeJSON(contracts.OrderResult{OrderID: "rej", Status: contracts.StatusRejected})
			return
		}
		writeJSON(contracts.OrderResult{OrderID: "ok", Status: contracts.StatusFilled, FillPrice: 50.1})

	case "/positions/close-all":
		v.closeAlls.Add(1)
		writeJSON(map[string]int{"closed_positions": 2})

	default:
		http.NotFound(w, r)
	}
}

func (v *fakeVenue) config() *config.Config {
	ep := config.ServiceEndpoint{BaseURL: v.server.URL, Timeout: 2 * time.Second}
	return &config.Config{
		Services: config.ServicesConfig{
			Scan:            ep,
			News:            ep,
			Pattern:         ep,
			Technical:       ep,
			Risk:            ep,
			Execution:       ep,
			RateLimit:       10000,
			RateLimitWindow: time.Second,
		},
		Cycle: config.CycleConfig{
			MinScanFrequency: time.Second,
			MaxScanFrequency: 2 * time.Hour,
			UniverseSize:     200,
			TrackedSize:      100,
			CatalystSize:     50,
			FinalSize:        5,
		},
	}
}

func newTestCoordinator(v *fakeVenue) *Coordinator {
	return newTestCoordinatorWithConfig(v, v.config())
}

func newTestCoordinatorWithConfig(v *fakeVenue, cfg *config.Config) *Coordinator {
	log := logger.NewNop()
	health := services.NewHealthRegistry()
	caller := services.NewCaller(cfg, log, nil, health)

	return New(Deps{
		Config:  cfg,
		Machine: cycle.NewMachine(nil, log),
		Funnel:  funnel.New(funnel.DefaultConfig(), log),
		StepLog: cycle.NewStepLog(nil, log),
		Metrics: metrics.NewRegistry(),
		Health:  health,
		Caller:  caller,
		Logger:  log,
	})
}

// testSettings keeps the scan frequency long so only the immediate
// first tick runs during a test.
func testSettings() contracts.CycleSettings {
	return contracts.CycleSettings{
		Mode:            contracts.ModeNormal,
		Aggressiveness:  0.5,
		MaxPositions:    5,
		ScanFrequency:   time.Hour,
		RiskLevel:       0.02,
		TotalRiskBudget: 10000,
		ConfidenceFloor: 50,
	}
}

func TestCoordinator_FullCycle(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	coord := newTestCoordinator(venue)
	ctx := context.Background()

	started, err := coord.StartCycle(ctx, testSettings())
	require.NoError(t, err)
	assert.Equal(t, contracts.CycleActive, started.Status)

	// The first tick submits one order per shortlisted candidate.
	require.Eventually(t, func() bool {
		return coord.LedgerSnapshot().PositionCount == 3
	}, 5*time.Second, 20*time.Millisecond)

	assert.EqualValues(t, 3, venue.orderCalls.Load())
	assert.EqualValues(t, 3, venue.checkCalls.Load())

	snap := coord.LedgerSnapshot()
	assert.Greater(t, snap.UsedBudget, 0.0)
	assert.LessOrEqual(t, snap.UsedBudget, snap.TotalBudget)

	// The cycle record mirrors the ledger.
	require.Eventually(t, func() bool {
		cur := coord.CurrentCycle()
		return cur != nil && cur.CurrentPositions == 3
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, coord.StopCycle(ctx))
	assert.Equal(t, contracts.CycleStopped, coord.CurrentCycle().Status)

	// Stop is idempotent in effect: the second call reports no cycle.
	assert.ErrorIs(t, coord.StopCycle(ctx), contracts.ErrNoActiveCycle)
}

func TestCoordinator_StartFailsWhenScanDown(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	venue.scanDown.Store(true)

	coord := newTestCoordinator(venue)

	_, err := coord.StartCycle(context.Background(), testSettings())
	require.Error(t, err)

	var initErr *contracts.InitFailureError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, contracts.ServiceScan, initErr.Service)

	// The machine reverted to idle: a new start is possible.
	assert.Nil(t, coord.CurrentCycle())
	venue.scanDown.Store(false)
	_, err = coord.StartCycle(context.Background(), testSettings())
	assert.NoError(t, err)
	_ = coord.StopCycle(context.Background())
}

func TestCoordinator_RejectsSecondCycle(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	coord := newTestCoordinator(venue)
	ctx := context.Background()

	_, err := coord.StartCycle(ctx, testSettings())
	require.NoError(t, err)

	_, err = coord.StartCycle(ctx, testSettings())
	require.Error(t, err)
	assert.True(t, contracts.IsValidationError(err))

	_ = coord.StopCycle(ctx)
}

func TestCoordinator_NewsDegradedStillTrades(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	venue.newsDown.Store(true)

	coord := newTestCoordinator(venue)
	ctx := context.Background()

	_, err := coord.StartCycle(ctx, testSettings())
	require.NoError(t, err)

	// Without catalysts the gate relaxes; candidates still flow through
	// on momentum, pattern and technical scores.
	require.Eventually(t, func() bool {
		return coord.LedgerSnapshot().PositionCount == 3
	}, 5*time.Second, 20*time.Millisecond)

	_ = coord.StopCycle(ctx)
}

func TestCoordinator_RiskRejectionSkipsCandidates(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	venue.riskRejects.Store(true)

	coord := newTestCoordinator(venue)
	ctx := context.Background()

	_, err := coord.StartCycle(ctx, testSettings())
	require.NoError(t, err)

	// Every candidate reaches the risk evaluator and is turned away
	// individually; no order is ever submitted.
	require.Eventually(t, func() bool {
		return venue.checkCalls.Load() == 3
	}, 5*time.Second, 20*time.Millisecond)

	assert.EqualValues(t, 0, venue.orderCalls.Load())
	snap := coord.LedgerSnapshot()
	assert.Equal(t, 0, snap.PositionCount)
	assert.Equal(t, 0.0, snap.UsedBudget)
	assert.Equal(t, 0.0, snap.Reserved)

	_ = coord.StopCycle(ctx)
}

func TestCoordinator_VenueRejectionReleasesBudget(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	venue.venueRejects.Store(true)

	coord := newTestCoordinator(venue)
	ctx := context.Background()

	_, err := coord.StartCycle(ctx, testSettings())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return venue.orderCalls.Load() == 3
	}, 5*time.Second, 20*time.Millisecond)

	snap := coord.LedgerSnapshot()
	assert.Equal(t, 0, snap.PositionCount)
	assert.Equal(t, 0.0, snap.Reserved)

	_ = coord.StopCycle(ctx)
}

func TestCoordinator_EmergencyStop(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	coord := newTestCoordinator(venue)
	ctx := context.Background()

	_, err := coord.StartCycle(ctx, testSettings())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return coord.LedgerSnapshot().PositionCount == 3
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, coord.EmergencyStop(ctx))
	assert.EqualValues(t, 1, venue.closeAlls.Load())
	assert.Equal(t, contracts.CycleEmergencyStopped, coord.CurrentCycle().Status)

	// Nothing left to stop afterwards.
	assert.ErrorIs(t, coord.EmergencyStop(ctx), contracts.ErrNoActiveCycle)
	assert.ErrorIs(t, coord.StopCycle(ctx), contracts.ErrNoActiveCycle)
}

func TestCoordinator_StopWithoutCycle(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	coord := newTestCoordinator(venue)

	assert.ErrorIs(t, coord.StopCycle(context.Background()), contracts.ErrNoActiveCycle)
	assert.ErrorIs(t, coord.EmergencyStop(context.Background()), contracts.ErrNoActiveCycle)
}

func TestCoordinator_StartWaitsForDrainingLoop(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	venue.analyzeDelayMs.Store(700)

	// A short execution timeout shrinks the stop grace period well below
	// the analysis phase, so the tick loop outlives StopCycle.
	cfg := venue.config()
	cfg.Services.Execution.Timeout = 50 * time.Millisecond
	coord := newTestCoordinatorWithConfig(venue, cfg)
	ctx := context.Background()

	_, err := coord.StartCycle(ctx, testSettings())
	require.NoError(t, err)

	// Let the first tick reach the slow analysis phase, then stop. The
	// grace period elapses with the loop still draining.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, coord.StopCycle(ctx))

	// The previous loop has not exited: a new start is refused rather
	// than leaving two tick loops alive.
	_, err = coord.StartCycle(ctx, testSettings())
	require.Error(t, err)
	assert.True(t, contracts.IsValidationError(err))

	// Once the old loop drains, starting works again.
	require.Eventually(t, func() bool {
		_, err := coord.StartCycle(ctx, testSettings())
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	_ = coord.StopCycle(ctx)
}

func TestEffectiveFloor(t *testing.T) {
	base := contracts.CycleSettings{ConfidenceFloor: 60, Aggressiveness: 0.5}

	normal := base
	normal.Mode = contracts.ModeNormal
	assert.Equal(t, 60.0, effectiveFloor(normal))

	conservative := base
	conservative.Mode = contracts.ModeConservative
	assert.Equal(t, 70.0, effectiveFloor(conservative))

	aggressive := base
	aggressive.Mode = contracts.ModeAggressive
	assert.Equal(t, 50.0, effectiveFloor(aggressive))

	// Aggressiveness shifts the floor within the mode.
	timid := normal
	timid.Aggressiveness = 0
	assert.Equal(t, 70.0, effectiveFloor(timid))

	bold := aggressive
	bold.Aggressiveness = 1
	assert.Equal(t, 40.0, effectiveFloor(bold))

	// The floor stays within the score range.
	floored := aggressive
	floored.ConfidenceFloor = 5
	floored.Aggressiveness = 1
	assert.Equal(t, 0.0, effectiveFloor(floored))
}

func TestCoordinator_UpdateSettings(t *testing.T) {
	venue := newFakeVenue()
	defer venue.server.Close()
	coord := newTestCoordinator(venue)
	ctx := context.Background()

	// No cycle yet: rejected.
	err := coord.UpdateSettings(ctx, testSettings())
	assert.ErrorIs(t, err, contracts.ErrNoActiveCycle)

	_, err = coord.StartCycle(ctx, testSettings())
	require.NoError(t, err)

	updated := testSettings()
	updated.ConfidenceFloor = 80
	require.NoError(t, coord.UpdateSettings(ctx, updated))
	assert.Equal(t, 80.0, coord.CurrentCycle().Settings.ConfidenceFloor)

	_ = coord.StopCycle(ctx)
}
