package cycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/pulse/internal/contracts"
)

// Repository handles cycle and funnel snapshot persistence: one
// durable record per cycle, one per (scan_id, symbol) funnel snapshot.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a cycle repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveCycle upserts the cycle record.
func (r *Repository) SaveCycle(ctx context.Context, cycle *contracts.TradingCycle) error {
	settingsJSON, err := json.Marshal(cycle.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	metricsJSON, err := json.Marshal(cycle.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
		INSERT INTO trading.cycles (
			cycle_id, status, settings, started_at, ended_at,
			used_risk_budget, current_positions, current_exposure, metrics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cycle_id) DO UPDATE SET
			status = EXCLUDED.status,
			settings = EXCLUDED.settings,
			ended_at = EXCLUDED.ended_at,
			used_risk_budget = EXCLUDED.used_risk_budget,
			current_positions = EXCLUDED.current_positions,
			current_exposure = EXCLUDED.current_exposure,
			metrics = EXCLUDED.metrics,
			updated_at = NOW()
	`

	_, err = r.pool.Exec(ctx, query,
		cycle.CycleID, cycle.Status, settingsJSON, cycle.StartedAt, cycle.EndedAt,
		cycle.UsedRiskBudget, cycle.CurrentPositions, cycle.CurrentExposure, metricsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle: %w", err)
	}

	return nil
}

// GetCycle loads one cycle record.
func (r *Repository) GetCycle(ctx context.Context, cycleID string) (*contracts.TradingCycle, error) {
	query := `
		SELECT cycle_id, status, settings, started_at, ended_at,
		       used_risk_budget, current_positions, current_exposure, metrics
		FROM trading.cycles
		WHERE cycle_id = $1
	`

	var (
		cycle        contracts.TradingCycle
		settingsJSON []byte
		metricsJSON  []byte
	)

	err := r.pool.QueryRow(ctx, query, cycleID).Scan(
		&cycle.CycleID, &cycle.Status, &settingsJSON, &cycle.StartedAt, &cycle.EndedAt,
		&cycle.UsedRiskBudget, &cycle.CurrentPositions, &cycle.CurrentExposure, &metricsJSON,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cycle: %w", err)
	}

	if err := json.Unmarshal(settingsJSON, &cycle.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := json.Unmarshal(metricsJSON, &cycle.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	return &cycle, nil
}

// ListRecentCycles returns the most recent cycles, newest first.
// Cycle IDs sort by creation time, so ordering by ID is ordering by age.
func (r *Repository) ListRecentCycles(ctx context.Context, limit int) ([]contracts.TradingCycle, error) {
	query := `
		SELECT cycle_id, status, settings, started_at, ended_at,
		       used_risk_budget, current_positions, current_exposure, metrics
		FROM trading.cycles
		ORDER BY cycle_id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []contracts.TradingCycle
	for rows.Next() {
		var (
			cycle        contracts.TradingCycle
			settingsJSON []byte
			metricsJSON  []byte
		)
		if err := rows.Scan(
			&cycle.CycleID, &cycle.Status, &settingsJSON, &cycle.StartedAt, &cycle.EndedAt,
			&cycle.UsedRiskBudget, &cycle.CurrentPositions, &cycle.CurrentExposure, &metricsJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		if err := json.Unmarshal(settingsJSON, &cycle.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
		if err := json.Unmarshal(metricsJSON, &cycle.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		cycles = append(cycles, cycle)
	}

	return cycles, rows.Err()
}

// SaveFunnelSnapshot stores the candidate set of one scan, keyed by
// (scan_id, symbol).
func (r *Repository) SaveFunnelSnapshot(ctx context.Context, cycleID string, candidates []contracts.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trading.funnel_snapshots (
			scan_id, symbol, cycle_id, price, volume, change_pct,
			momentum_score, volume_score, catalyst_score, pattern_score, technical_score,
			composite_score, rank
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (scan_id, symbol) DO UPDATE SET
			momentum_score = EXCLUDED.momentum_score,
			volume_score = EXCLUDED.volume_score,
			catalyst_score = EXCLUDED.catalyst_score,
			pattern_score = EXCLUDED.pattern_score,
			technical_score = EXCLUDED.technical_score,
			composite_score = EXCLUDED.composite_score,
			rank = EXCLUDED.rank
	`

	for _, c := range candidates {
		_, err := tx.Exec(ctx, query,
			c.ScanID, c.Symbol, cycleID, c.Price, c.Volume, c.ChangePct,
			c.Scores.Momentum, c.Scores.Volume, c.Scores.Catalyst,
			c.Scores.Pattern, c.Scores.Technical,
			c.CompositeScore, c.Rank,
		)
		if err != nil {
			return fmt.Errorf("failed to insert funnel snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit funnel snapshot: %w", err)
	}

	return nil
}

// PruneFunnelSnapshots deletes snapshots older than the retention
// window. Snapshot ScanIDs sort by creation time.
func (r *Repository) PruneFunnelSnapshots(ctx context.Context, before string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM trading.funnel_snapshots WHERE scan_id < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune funnel snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
