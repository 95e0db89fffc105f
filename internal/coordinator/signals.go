package coordinator

import (
	"fmt"
	"math"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
)

// generateSignals turns the final ranked candidates into trade
// signals. A candidate's composite score is its confidence; signals
// below the effective floor are discarded, not retried.
func (c *Coordinator) generateSignals(final []contracts.Candidate, technicals map[string]*contracts.TechnicalResult, settings contracts.CycleSettings) ([]contracts.Signal, int) {
	floor := effectiveFloor(settings)

	signals := make([]contracts.Signal, 0, len(final))
	discarded := 0

	for _, cand := range final {
		if cand.CompositeScore < floor {
			discarded++
			c.logger.WithFields(map[string]interface{}{
				"symbol":     cand.Symbol,
				"confidence": cand.CompositeScore,
				"floor":      floor,
			}).Debug("Signal below confidence floor, discarded")
			continue
		}

		signal := buildSignal(cand, technicals[cand.Symbol], settings)
		if signal.Quantity <= 0 {
			discarded++
			continue
		}
		signals = append(signals, signal)
	}

	return signals, discarded
}

// effectiveFloor adjusts the configured confidence floor per mode:
// conservative demands more conviction, aggressive accepts less.
// Aggressiveness fine-tunes within the mode: 0.5 is neutral, 1.0
// lowers the floor by a further 10 points, 0.0 raises it by 10.
func effectiveFloor(settings contracts.CycleSettings) float64 {
	floor := settings.ConfidenceFloor
	switch settings.Mode {
	case contracts.ModeConservative:
		floor += 10
	case contracts.ModeAggressive:
		floor -= 10
	}
	floor += (0.5 - settings.Aggressiveness) * 20
	if floor < 0 {
		floor = 0
	}
	if floor > 100 {
		floor = 100
	}
	return floor
}

// buildSignal sizes one long entry. The stop anchors to the technical
// support level when the analyzer provided one below the entry;
// otherwise a fixed 3% stop applies. Position size spends at most
// risk_level of the total budget on the stop distance.
func buildSignal(cand contracts.Candidate, technical *contracts.TechnicalResult, settings contracts.CycleSettings) contracts.Signal {
	entry := cand.Price

	stop := entry * 0.97
	if technical != nil && technical.Support > 0 && technical.Support < entry {
		// Keep the anchored stop within a 10% band of entry so a stale
		// support level cannot blow up the position size.
		if technical.Support > entry*0.90 {
			stop = technical.Support
		}
	}

	perShareRisk := entry - stop
	riskAllowance := settings.TotalRiskBudget * settings.RiskLevel
	qty := 0
	if perShareRisk > 0 {
		qty = int(math.Floor(riskAllowance / perShareRisk))
	}

	return contracts.Signal{
		Symbol:     cand.Symbol,
		Side:       contracts.OrderSideBuy,
		Confidence: cand.CompositeScore,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: entry + 2*perShareRisk,
		Quantity:   qty,
		Reason: fmt.Sprintf("rank %d, composite %.1f (m=%.0f c=%.0f p=%.0f t=%.0f)",
			cand.Rank, cand.CompositeScore,
			cand.Scores.Momentum, cand.Scores.Catalyst,
			cand.Scores.Pattern, cand.Scores.Technical),
		CreatedAt: time.Now(),
	}
}
