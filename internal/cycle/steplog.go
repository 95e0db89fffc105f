package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/pkg/logger"
)

// StepLogStore persists step records.
type StepLogStore interface {
	AppendStep(ctx context.Context, record contracts.StepRecord) error
}

// StepLog is the append-only step log of a cycle. Records whose
// durable write fails are buffered in memory and flushed at the next
// step boundary; the failure is surfaced to operators via the log,
// never swallowed.
type StepLog struct {
	store  StepLogStore
	logger *logger.Logger

	mu      sync.Mutex
	pending []contracts.StepRecord
}

// NewStepLog creates a step log writer.
func NewStepLog(store StepLogStore, log *logger.Logger) *StepLog {
	return &StepLog{
		store:  store,
		logger: log,
	}
}

// Record appends one step record, flushing any previously failed
// writes first.
func (l *StepLog) Record(ctx context.Context, record contracts.StepRecord) {
	record.RecordedAt = time.Now()

	l.logger.WithFields(map[string]interface{}{
		"cycle_id": record.CycleID,
		"step":     record.Step,
		"outcome":  record.Outcome,
		"input":    record.InputSize,
		"output":   record.OutputSize,
		"duration": record.Duration,
		"detail":   record.Detail,
	}).Info("Step recorded")

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, record)
	l.flushLocked(ctx)
}

// Flush retries buffered writes. Called at step boundaries.
func (l *StepLog) Flush(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked(ctx)
}

// Pending returns the number of unflushed records.
func (l *StepLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *StepLog) flushLocked(ctx context.Context) {
	if l.store == nil {
		l.pending = nil
		return
	}

	for len(l.pending) > 0 {
		record := l.pending[0]
		if err := l.store.AppendStep(ctx, record); err != nil {
			perr := &contracts.PersistenceError{Op: "append step", Err: err}
			l.logger.WithError(perr).WithFields(map[string]interface{}{
				"cycle_id": record.CycleID,
				"step":     record.Step,
				"buffered": len(l.pending),
			}).Error("Step log persistence failed, will retry at next step boundary")
			return
		}
		l.pending = l.pending[1:]
	}
}

// AppendStep writes one step record to the append-only table.
func (r *Repository) AppendStep(ctx context.Context, record contracts.StepRecord) error {
	extraJSON, err := json.Marshal(record.Extra)
	if err != nil {
		return fmt.Errorf("failed to marshal extra: %w", err)
	}

	query := `
		INSERT INTO trading.step_log (
			cycle_id, scan_id, step, outcome, detail,
			input_size, output_size, duration_ms, extra, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		record.CycleID, record.ScanID, record.Step, record.Outcome, record.Detail,
		record.InputSize, record.OutputSize, record.Duration.Milliseconds(),
		extraJSON, record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append step: %w", err)
	}

	return nil
}

// PruneStepLog deletes step records older than the retention window.
func (r *Repository) PruneStepLog(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM trading.step_log WHERE recorded_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune step log: %w", err)
	}
	return tag.RowsAffected(), nil
}
