package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/funnel"
	"github.com/quantpulse/pulse/pkg/redis"
)

// newsLookback bounds how far back catalysts are considered.
const newsLookback = 24 * time.Hour

// runTick executes one workflow iteration:
//
//  1. scan + news issued concurrently, independent timeouts
//  2. funnel: universe → tracked → catalyst-filtered → shortlist
//  3. pattern/technical analysis for the shortlist only
//  4. composite recompute and signal generation
//  5. risk-gated, strictly sequential execution
//
// The returned string labels the tick outcome for metrics.
func (c *Coordinator) runTick(ctx context.Context) string {
	cur := c.machine.Current()
	if cur == nil || cur.Status != contracts.CycleActive {
		return "skipped"
	}
	settings := cur.Settings
	scanID := contracts.NewScanID(time.Now())

	log := c.logger.WithFields(map[string]interface{}{
		"cycle_id": cur.CycleID,
		"scan_id":  scanID,
	})
	log.Debug("Tick started")

	// Step 1: scan and news in parallel. Partial failure of one never
	// blocks the other.
	var (
		wg         sync.WaitGroup
		rows       []contracts.ScanRow
		scanResult contracts.ServiceCallResult
		catalysts  map[string][]contracts.Catalyst
		newsResult contracts.ServiceCallResult
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		rows, scanResult = c.scan.Scan(ctx, settings.Mode, c.cfg.Cycle.UniverseSize, 0)
	}()
	go func() {
		defer wg.Done()
		catalysts, newsResult = c.news.Catalysts(ctx, nil, newsLookback, 0)
	}()
	wg.Wait()

	c.observeCall(scanResult)
	c.observeCall(newsResult)

	c.recordStep(ctx, contracts.StepRecord{
		CycleID:    cur.CycleID,
		ScanID:     scanID,
		Step:       contracts.StepScan,
		Outcome:    outcomeFor(scanResult.Success),
		Detail:     scanResult.Error,
		OutputSize: len(rows),
		Duration:   scanResult.Latency,
	})

	newsOutcome := contracts.StepOK
	if !newsResult.Success {
		newsOutcome = contracts.StepDegraded
	}
	c.recordStep(ctx, contracts.StepRecord{
		CycleID:    cur.CycleID,
		ScanID:     scanID,
		Step:       contracts.StepNews,
		Outcome:    newsOutcome,
		Detail:     newsResult.Error,
		OutputSize: len(catalysts),
		Duration:   newsResult.Latency,
	})

	if !scanResult.Success {
		// No universe without the scan source; the next tick retries.
		log.WithField("error_kind", scanResult.ErrorKind).Warn("Scan failed, skipping tick")
		return "scan_failed"
	}
	newsDegraded := !newsResult.Success

	if c.stopRequested() {
		return "stopped"
	}

	// Step 2: staged funnel reduction on cheap, already-available data.
	funnelStart := time.Now()
	universe := c.funnel.BuildUniverse(scanID, rows)
	tracked := c.funnel.Track(universe, catalysts)
	catalystSet := c.funnel.FilterByCatalyst(tracked, newsDegraded)
	shortlist := c.funnel.Shortlist(catalystSet)

	c.observeStage("universe", len(rows), len(universe))
	c.observeStage("tracked", len(universe), len(tracked))
	c.observeStage("catalyst", len(tracked), len(catalystSet))
	c.observeStage("final", len(catalystSet), len(shortlist))

	c.persistSnapshot(ctx, cur.CycleID, scanID, catalystSet)

	c.recordStep(ctx, contracts.StepRecord{
		CycleID:    cur.CycleID,
		ScanID:     scanID,
		Step:       contracts.StepFunnel,
		Outcome:    contracts.StepOK,
		InputSize:  len(rows),
		OutputSize: len(shortlist),
		Duration:   time.Since(funnelStart),
		Extra: map[string]interface{}{
			"universe":      len(universe),
			"tracked":       len(tracked),
			"catalyst_set":  len(catalystSet),
			"news_degraded": newsDegraded,
		},
	})

	if len(shortlist) == 0 {
		log.Info("Empty shortlist, nothing to analyze")
		return "ok"
	}

	if c.stopRequested() {
		return "stopped"
	}

	// Step 3: expensive per-symbol analysis, shortlist only, bounded
	// parallelism.
	analysisStart := time.Now()
	enriched, technicals, analysisFailures := c.analyzeShortlist(ctx, shortlist)

	analysisOutcome := contracts.StepOK
	if analysisFailures > 0 {
		analysisOutcome = contracts.StepDegraded
	}
	c.recordStep(ctx, contracts.StepRecord{
		CycleID:    cur.CycleID,
		ScanID:     scanID,
		Step:       contracts.StepAnalysis,
		Outcome:    analysisOutcome,
		Detail:     detailForFailures(analysisFailures),
		InputSize:  len(shortlist),
		OutputSize: len(enriched),
		Duration:   time.Since(analysisStart),
	})

	// Step 4: final composite and ranking.
	final := c.funnel.Finalize(enriched)

	// Step 5: signal generation with the configured confidence floor.
	signals, discarded := c.generateSignals(final, technicals, settings)
	c.metrics.SignalsGenerated.Add(float64(len(signals)))
	c.metrics.SignalsDiscarded.Add(float64(discarded))

	c.recordStep(ctx, contracts.StepRecord{
		CycleID:    cur.CycleID,
		ScanID:     scanID,
		Step:       contracts.StepSignals,
		Outcome:    contracts.StepOK,
		InputSize:  len(final),
		OutputSize: len(signals),
		Extra:      map[string]interface{}{"discarded": discarded},
	})

	if c.stopRequested() {
		return "stopped"
	}

	// Step 6: risk-gated sequential execution.
	c.executeSignals(ctx, cur.CycleID, scanID, signals)

	// Step 7: mirror ledger state onto the cycle record so a crash
	// leaves an inspectable partial record.
	c.syncLedger(ctx)
	c.stepLog.Flush(ctx)

	log.Debug("Tick completed")
	return "ok"
}

// analyzeShortlist runs pattern and technical analysis for each
// shortlist symbol, in parallel up to the shortlist size. A failed
// analysis leaves that component score at zero; the candidate stays in
// the funnel with degraded data.
func (c *Coordinator) analyzeShortlist(ctx context.Context, shortlist []contracts.Candidate) ([]contracts.Candidate, map[string]*contracts.TechnicalResult, int) {
	enriched := make([]contracts.Candidate, len(shortlist))
	copy(enriched, shortlist)

	technicals := make(map[string]*contracts.TechnicalResult, len(shortlist))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures int
	)

	for i := range enriched {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			cand := &enriched[idx]

			patterns, patResult := c.pattern.Detect(ctx, cand.Symbol, "5m", cand.Catalysts, 0)
			c.observeCall(patResult)

			technical, techResult := c.technical.Analyze(ctx, cand.Symbol, "5m", 0)
			c.observeCall(techResult)

			mu.Lock()
			defer mu.Unlock()

			if patResult.Success {
				cand.Scores.Pattern = funnel.PatternScore(patterns)
			} else {
				failures++
			}
			if techResult.Success {
				cand.Scores.Technical = funnel.TechnicalScore(technical)
				technicals[cand.Symbol] = technical
			} else {
				failures++
			}
		}(i)
	}
	wg.Wait()

	return enriched, technicals, failures
}

// persistSnapshot stores the funnel output, tolerating write failures
// the same way the machine does.
func (c *Coordinator) persistSnapshot(ctx context.Context, cycleID, scanID string, candidates []contracts.Candidate) {
	if c.store != nil {
		if err := c.store.SaveFunnelSnapshot(ctx, cycleID, candidates); err != nil {
			perr := &contracts.PersistenceError{Op: "save funnel snapshot", Err: err}
			c.logger.WithError(perr).WithField("scan_id", scanID).
				Error("Funnel snapshot persistence failed")
		}
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, redis.LatestScanKey(), candidates, redis.TTLShort); err != nil {
			c.logger.WithError(err).Debug("Scan snapshot cache write failed")
		}
	}
}

func (c *Coordinator) recordStep(ctx context.Context, record contracts.StepRecord) {
	c.stepLog.Record(ctx, record)
	c.metrics.StepDuration.WithLabelValues(string(record.Step), string(record.Outcome)).
		Observe(record.Duration.Seconds())
}

func (c *Coordinator) observeCall(result contracts.ServiceCallResult) {
	if result.Service == "" {
		return
	}
	if result.Success {
		c.metrics.ServiceCalls.WithLabelValues(string(result.Service), "ok").Inc()
		return
	}
	c.metrics.ServiceCalls.WithLabelValues(string(result.Service), "error").Inc()
	c.metrics.ServiceErrors.WithLabelValues(string(result.Service), string(result.ErrorKind)).Inc()
}

func (c *Coordinator) observeStage(stage string, input, output int) {
	c.metrics.StageInputSize.WithLabelValues(stage).Set(float64(input))
	c.metrics.StageOutputSize.WithLabelValues(stage).Set(float64(output))
}

func (c *Coordinator) syncLedger(ctx context.Context) {
	c.mu.Lock()
	ledger := c.ledger
	c.mu.Unlock()
	if ledger == nil {
		return
	}

	snap := ledger.Snapshot()
	c.machine.SyncRisk(ctx, snap)
	c.metrics.UsedRiskBudget.Set(snap.UsedBudget)
	c.metrics.OpenPositions.Set(float64(snap.PositionCount))
}

func detailForFailures(failures int) string {
	if failures == 0 {
		return ""
	}
	return fmt.Sprintf("%d analysis calls failed", failures)
}
