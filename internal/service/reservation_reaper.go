package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
)

type reservationCleaner interface {
	Cleanup(ctx context.Context) (*dto.CleanupResult, error)
}

// ReservationReaper periodically releases abandoned voucher reservations.
type ReservationReaper struct {
	ledger   reservationCleaner
	interval time.Duration
	logger   *zap.Logger
}

// NewReservationReaper constructs a reaper that sweeps every interval.
func NewReservationReaper(ledger reservationCleaner, interval time.Duration, logger *zap.Logger) *ReservationReaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationReaper{ledger: ledger, interval: interval, logger: logger}
}

// Start boots a goroutine that sweeps until ctx is cancelled. A non-positive interval
// disables the schedule; Cleanup stays available on demand.
func (r *ReservationReaper) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *ReservationReaper) sweep(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()
	if _, err := r.ledger.Cleanup(runCtx); err != nil {
		r.logger.Sugar().Warnw("voucher cleanup failed", "error", err)
	}
}
