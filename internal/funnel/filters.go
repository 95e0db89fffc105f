package funnel

import "github.com/quantpulse/pulse/internal/contracts"

// HardFilter drops non-conforming candidates before any scoring.
type HardFilter struct {
	MinPrice     float64
	MaxPrice     float64
	MinVolume    int64
	MaxSpreadPct float64 // estimated spread ceiling as a fraction of price
}

// DefaultHardFilter targets liquid small/mid caps.
func DefaultHardFilter() HardFilter {
	return HardFilter{
		MinPrice:     1.0,
		MaxPrice:     500.0,
		MinVolume:    100_000,
		MaxSpreadPct: 0.02,
	}
}

// Pass reports whether a scan row conforms to the filter.
func (h HardFilter) Pass(row contracts.ScanRow) bool {
	if row.Price < h.MinPrice || (h.MaxPrice > 0 && row.Price > h.MaxPrice) {
		return false
	}
	if row.Volume < h.MinVolume {
		return false
	}
	if h.MaxSpreadPct > 0 && estimatedSpreadPct(row) > h.MaxSpreadPct {
		return false
	}
	return true
}

// estimatedSpreadPct approximates the relative spread from price and
// volume. Thin, cheap names spread wider; the scan source does not
// carry quote data so this is a liquidity proxy, not a real spread.
func estimatedSpreadPct(row contracts.ScanRow) float64 {
	if row.Volume <= 0 {
		return 1
	}
	notional := row.Price * float64(row.Volume)
	switch {
	case notional >= 50_000_000:
		return 0.001
	case notional >= 10_000_000:
		return 0.005
	case notional >= 1_000_000:
		return 0.01
	default:
		return 0.03
	}
}
