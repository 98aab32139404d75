package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-trade/meridian/internal/reservation"
)

// TaskReservationSweep purges reservation entries whose TTL has lapsed.
// Availability math already ignores expired entries at read time, so the
// sweep is pure housekeeping and safe to run at any cadence.
const TaskReservationSweep = "reservation:sweep"

// NewReservationSweepTask constructs the sweep task. It carries no payload.
func NewReservationSweepTask() *asynq.Task {
	return asynq.NewTask(TaskReservationSweep, nil)
}

// ReservationSweepJob deletes lapsed reservation entries via the ledger.
type ReservationSweepJob struct {
	ledger *reservation.Ledger
	logger *slog.Logger
}

// NewReservationSweepJob constructs ReservationSweepJob.
func NewReservationSweepJob(ledger *reservation.Ledger, logger *slog.Logger) *ReservationSweepJob {
	return &ReservationSweepJob{ledger: ledger, logger: logger}
}

// Handle processes TaskReservationSweep tasks.
func (j *ReservationSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	removed, err := j.ledger.SweepExpired(ctx)
	if err != nil {
		j.logger.Error("reservation sweep failed", slog.Any("error", err))
		return err
	}
	if removed > 0 {
		j.logger.Info("reservation sweep completed", slog.Int64("removed", removed))
	}
	return nil
}
