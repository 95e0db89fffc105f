package funnel

import (
	"math"
	"strings"

	"github.com/quantpulse/pulse/internal/contracts"
)

// Component score formulas. Each is bounded to [0,100] and pure.

// MomentumScore maps a day change percentage onto [0,100]. A flat
// symbol scores 50; ±10% saturates the scale.
func MomentumScore(changePct float64) float64 {
	return contracts.ClampScore(50 + changePct*5)
}

// VolumeScore maps share volume onto [0,100] on a log scale. 100k
// shares scores ~25, 10M shares saturates.
func VolumeScore(volume int64) float64 {
	if volume <= 0 {
		return 0
	}
	return contracts.ClampScore((math.Log10(float64(volume)) - 4) * 33.3)
}

// CatalystScore combines the strongest catalysts for a symbol.
// Strength carries the score, sentiment scales it: strongly negative
// news on a long-only funnel scores near zero.
func CatalystScore(events []contracts.Catalyst) float64 {
	if len(events) == 0 {
		return 0
	}

	best := 0.0
	for _, ev := range events {
		s := ev.Strength * (0.5 + ev.Sentiment/2)
		if s > best {
			best = s
		}
	}
	return contracts.ClampScore(best)
}

// PatternScore takes the highest-confidence bullish match; bearish
// matches subtract, so a symbol flashing both directions nets out.
func PatternScore(matches []contracts.PatternMatch) float64 {
	score := 0.0
	for _, m := range matches {
		switch strings.ToLower(m.Direction) {
		case "bullish":
			if m.Confidence > score {
				score = m.Confidence
			}
		case "bearish":
			score -= m.Confidence / 2
		}
	}
	return contracts.ClampScore(score)
}

// TechnicalScore derives a [0,100] score from the analyzer response:
// trend direction dominates, RSI positioning adjusts.
func TechnicalScore(result *contracts.TechnicalResult) float64 {
	if result == nil {
		return 0
	}

	score := 50.0
	switch strings.ToLower(result.Trend) {
	case "up":
		score += 25
	case "down":
		score -= 25
	}

	if rsi, ok := result.Indicators["rsi"]; ok {
		switch {
		case rsi >= 80:
			score -= 15 // overbought
		case rsi >= 55:
			score += 10
		case rsi <= 25:
			score -= 10 // falling knife
		}
	}

	return contracts.ClampScore(score)
}
