package jobs

import (
	"context"
	"errors"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/internal/coordinator"
	"github.com/quantpulse/pulse/pkg/logger"
)

// EndOfDayJob stops any still-active cycle after market close so no
// cycle runs overnight. An idle system is a no-op.
type EndOfDayJob struct {
	coordinator *coordinator.Coordinator
	logger      *logger.Logger
}

// NewEndOfDayJob creates the end-of-day shutdown job.
func NewEndOfDayJob(coord *coordinator.Coordinator, log *logger.Logger) *EndOfDayJob {
	return &EndOfDayJob{
		coordinator: coord,
		logger:      log,
	}
}

func (j *EndOfDayJob) Name() string {
	return "end_of_day_shutdown"
}

// Schedule runs at 4:30 PM daily, after the close.
func (j *EndOfDayJob) Schedule() string {
	return "0 30 16 * * *"
}

func (j *EndOfDayJob) Run(ctx context.Context) error {
	err := j.coordinator.StopCycle(ctx)
	if errors.Is(err, contracts.ErrNoActiveCycle) {
		j.logger.Debug("End of day: no active cycle")
		return nil
	}
	if err != nil {
		return err
	}

	j.logger.Info("End of day: active cycle stopped")
	return nil
}
