package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankCandidates(t *testing.T) {
	weights := StageWeights{Momentum: 0.5, Volume: 0.5}

	candidates := []Candidate{
		{Symbol: "BBB", Scores: ScoreSet{Momentum: 80, Volume: 40}},
		{Symbol: "AAA", Scores: ScoreSet{Momentum: 40, Volume: 80}},
		{Symbol: "CCC", Scores: ScoreSet{Momentum: 90, Volume: 90}},
	}

	RankCandidates(candidates, weights)

	assert.Equal(t, "CCC", candidates[0].Symbol)
	assert.Equal(t, 90.0, candidates[0].CompositeScore)
	assert.Equal(t, 1, candidates[0].Rank)

	// AAA and BBB tie at 60; symbol order breaks the tie.
	assert.Equal(t, "AAA", candidates[1].Symbol)
	assert.Equal(t, "BBB", candidates[2].Symbol)
	assert.Equal(t, 2, candidates[1].Rank)
	assert.Equal(t, 3, candidates[2].Rank)
}

func TestRankCandidates_Deterministic(t *testing.T) {
	weights := StageWeights{Momentum: 1}

	build := func() []Candidate {
		return []Candidate{
			{Symbol: "DDD", Scores: ScoreSet{Momentum: 50}},
			{Symbol: "AAA", Scores: ScoreSet{Momentum: 50}},
			{Symbol: "CCC", Scores: ScoreSet{Momentum: 50}},
			{Symbol: "BBB", Scores: ScoreSet{Momentum: 70}},
		}
	}

	first := build()
	RankCandidates(first, weights)

	// Same inputs in a different order produce the same ranking.
	second := build()
	second[0], second[2] = second[2], second[0]
	RankCandidates(second, weights)

	for i := range first {
		assert.Equal(t, first[i].Symbol, second[i].Symbol)
		assert.Equal(t, first[i].Rank, second[i].Rank)
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-5))
	assert.Equal(t, 100.0, ClampScore(250))
	assert.Equal(t, 42.5, ClampScore(42.5))
}

func TestSignal_ImpliedRisk(t *testing.T) {
	signal := Signal{EntryPrice: 100, StopLoss: 97, Quantity: 50}
	assert.InDelta(t, 150.0, signal.ImpliedRisk(), 1e-9)

	// Short side: stop above entry still yields a positive risk.
	short := Signal{EntryPrice: 100, StopLoss: 103, Quantity: 50}
	assert.InDelta(t, 150.0, short.ImpliedRisk(), 1e-9)
}

func TestStageWeights_Sum(t *testing.T) {
	weights := StageWeights{Momentum: 0.3, Catalyst: 0.3, Pattern: 0.2, Technical: 0.2}
	assert.InDelta(t, 1.0, weights.Sum(), 1e-9)
}
