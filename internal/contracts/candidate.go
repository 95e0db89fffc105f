package contracts

import (
	"sort"
	"time"
)

// Candidate represents a security under consideration at a funnel stage.
// Candidates are created fresh each scan and keyed by (scan_id, symbol);
// they are never carried across cycles as mutable entities.
type Candidate struct {
	ScanID string `json:"scan_id"`
	Symbol string `json:"symbol"`

	// Raw market snapshot from the scan source
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	ChangePct float64 `json:"change_pct"`

	// Component scores, each bounded to [0,100]
	Scores ScoreSet `json:"scores"`

	// CompositeScore is derived from Scores and stage weights. It is
	// recomputed at every stage, never stored independently of its inputs.
	CompositeScore float64 `json:"composite_score"`

	// Rank is the 1-based position after sorting, stage-local.
	Rank int `json:"rank"`

	// Catalysts attached during the news stage
	Catalysts []Catalyst `json:"catalysts,omitempty"`
}

// ScoreSet holds the per-component scores of a candidate.
type ScoreSet struct {
	Momentum  float64 `json:"momentum"`
	Volume    float64 `json:"volume"`
	Catalyst  float64 `json:"catalyst"`
	Pattern   float64 `json:"pattern"`
	Technical float64 `json:"technical"`
}

// StageWeights defines the weighted combination used to compute a
// composite score at one funnel stage. Weights should sum to 1.0.
type StageWeights struct {
	Momentum  float64 `json:"momentum"`
	Volume    float64 `json:"volume"`
	Catalyst  float64 `json:"catalyst"`
	Pattern   float64 `json:"pattern"`
	Technical float64 `json:"technical"`
}

// Sum returns the weight total. Callers validate it stays near 1.0.
func (w StageWeights) Sum() float64 {
	return w.Momentum + w.Volume + w.Catalyst + w.Pattern + w.Technical
}

// Composite computes the weighted composite score for a score set.
// It is a pure function: same inputs, same output.
func (w StageWeights) Composite(s ScoreSet) float64 {
	return s.Momentum*w.Momentum +
		s.Volume*w.Volume +
		s.Catalyst*w.Catalyst +
		s.Pattern*w.Pattern +
		s.Technical*w.Technical
}

// RankCandidates recomputes composite scores with the given weights,
// sorts descending, breaks ties by symbol lexical order for
// reproducibility, and assigns 1-based ranks in place.
func RankCandidates(candidates []Candidate, weights StageWeights) {
	for i := range candidates {
		candidates[i].CompositeScore = weights.Composite(candidates[i].Scores)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CompositeScore != candidates[j].CompositeScore {
			return candidates[i].CompositeScore > candidates[j].CompositeScore
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})

	for i := range candidates {
		candidates[i].Rank = i + 1
	}
}

// ClampScore bounds a component score to [0,100].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Catalyst is one news event attached to a candidate.
type Catalyst struct {
	Symbol       string    `json:"symbol"`
	Headline     string    `json:"headline"`
	Sentiment    float64   `json:"sentiment"` // [-1,1]
	CatalystType string    `json:"catalyst_type"`
	Strength     float64   `json:"strength"` // [0,100]
	PublishedAt  time.Time `json:"published_at"`
}

// Signal is a generated trade signal for one shortlist candidate.
type Signal struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Confidence float64   `json:"confidence"` // [0,100]
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Quantity   int       `json:"quantity"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// ImpliedRisk returns the budget a signal would consume if executed:
// the distance to the stop across the full position.
func (s Signal) ImpliedRisk() float64 {
	perShare := s.EntryPrice - s.StopLoss
	if perShare < 0 {
		perShare = -perShare
	}
	return perShare * float64(s.Quantity)
}
