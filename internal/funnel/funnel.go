package funnel

import (
	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/pkg/logger"
)

// Funnel reduces a candidate universe to a tradable shortlist through
// ordered stages. Every method is pure with respect to its inputs: the
// same candidates and config produce the same output, and later stages
// never reintroduce a candidate dropped earlier.
type Funnel struct {
	config Config
	logger *logger.Logger
}

// Config holds stage caps, hard filters and stage weights.
type Config struct {
	UniverseSize int
	TrackedSize  int
	CatalystSize int
	FinalSize    int

	Filter HardFilter

	// MinCatalystScore gates the catalyst stage. Candidates below it
	// are dropped unless the news source degraded this tick.
	MinCatalystScore float64

	TrackedWeights contracts.StageWeights
	FinalWeights   contracts.StageWeights
}

// DefaultConfig returns the default funnel configuration:
// 200 → 100 → 50 → 5 with the documented stage weights.
func DefaultConfig() Config {
	return Config{
		UniverseSize:     200,
		TrackedSize:      100,
		CatalystSize:     50,
		FinalSize:        5,
		Filter:           DefaultHardFilter(),
		MinCatalystScore: 20,
		TrackedWeights: contracts.StageWeights{
			Momentum: 0.4,
			Volume:   0.3,
			Catalyst: 0.3,
		},
		FinalWeights: contracts.StageWeights{
			Momentum:  0.3,
			Catalyst:  0.3,
			Pattern:   0.2,
			Technical: 0.2,
		},
	}
}

// New creates a funnel.
func New(config Config, log *logger.Logger) *Funnel {
	return &Funnel{config: config, logger: log}
}

// BuildUniverse converts raw scan rows into scored candidates: hard
// filter, momentum and volume scoring, rank, truncate to the universe cap.
func (f *Funnel) BuildUniverse(scanID string, rows []contracts.ScanRow) []contracts.Candidate {
	candidates := make([]contracts.Candidate, 0, len(rows))
	dropped := 0

	for _, row := range rows {
		if !f.config.Filter.Pass(row) {
			dropped++
			continue
		}
		candidates = append(candidates, contracts.Candidate{
			ScanID:    scanID,
			Symbol:    row.Symbol,
			Price:     row.Price,
			Volume:    row.Volume,
			ChangePct: row.ChangePct,
			Scores: contracts.ScoreSet{
				Momentum: MomentumScore(row.ChangePct),
				Volume:   VolumeScore(row.Volume),
			},
		})
	}

	contracts.RankCandidates(candidates, f.config.TrackedWeights)
	candidates = truncate(candidates, f.config.UniverseSize)

	f.logger.WithFields(map[string]interface{}{
		"scan_id":  scanID,
		"input":    len(rows),
		"filtered": dropped,
		"output":   len(candidates),
	}).Debug("Universe stage completed")

	return candidates
}

// Track attaches catalyst scores and narrows the universe to the
// tracked set. Catalysts may be empty when the news source degraded;
// scoring then falls back to scan-derived components only.
func (f *Funnel) Track(candidates []contracts.Candidate, catalysts map[string][]contracts.Catalyst) []contracts.Candidate {
	out := cloneCandidates(candidates)

	for i := range out {
		events := catalysts[out[i].Symbol]
		out[i].Catalysts = events
		out[i].Scores.Catalyst = CatalystScore(events)
	}

	contracts.RankCandidates(out, f.config.TrackedWeights)
	out = truncate(out, f.config.TrackedSize)

	f.logger.WithFields(map[string]interface{}{
		"input":  len(candidates),
		"output": len(out),
	}).Debug("Tracked stage completed")

	return out
}

// FilterByCatalyst narrows the tracked set to candidates with a
// meaningful catalyst. With newsDegraded set the score gate is skipped
// so the cycle can still produce a shortlist from scan data alone.
func (f *Funnel) FilterByCatalyst(candidates []contracts.Candidate, newsDegraded bool) []contracts.Candidate {
	out := make([]contracts.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if newsDegraded || c.Scores.Catalyst >= f.config.MinCatalystScore {
			out = append(out, c)
		}
	}

	contracts.RankCandidates(out, f.config.TrackedWeights)
	out = truncate(out, f.config.CatalystSize)

	f.logger.WithFields(map[string]interface{}{
		"input":         len(candidates),
		"output":        len(out),
		"news_degraded": newsDegraded,
	}).Debug("Catalyst stage completed")

	return out
}

// Shortlist returns the final trading set before per-symbol analysis.
// Expensive pattern/technical calls are only ever issued for this set.
func (f *Funnel) Shortlist(candidates []contracts.Candidate) []contracts.Candidate {
	out := cloneCandidates(candidates)
	contracts.RankCandidates(out, f.config.TrackedWeights)
	return truncate(out, f.config.FinalSize)
}

// Finalize recomputes composites with the final-stage weights after
// pattern and technical scores were attached, and re-ranks.
func (f *Funnel) Finalize(candidates []contracts.Candidate) []contracts.Candidate {
	out := cloneCandidates(candidates)
	contracts.RankCandidates(out, f.config.FinalWeights)

	f.logger.WithFields(map[string]interface{}{
		"output": len(out),
	}).Debug("Final stage completed")

	return out
}

// FinalWeights exposes the final-stage weights for signal generation.
func (f *Funnel) FinalWeights() contracts.StageWeights {
	return f.config.FinalWeights
}

func truncate(candidates []contracts.Candidate, cap int) []contracts.Candidate {
	if cap >= 0 && len(candidates) > cap {
		return candidates[:cap]
	}
	return candidates
}

func cloneCandidates(candidates []contracts.Candidate) []contracts.Candidate {
	out := make([]contracts.Candidate, len(candidates))
	copy(out, candidates)
	return out
}
