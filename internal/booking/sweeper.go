package booking

import (
	"context"
	"time"

	"github.com/districtsmiles/appointment-booking/pkg/logging"
)

// expiryStore is the slice of the appointment repository the sweeper
// needs.
type expiryStore interface {
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper terminates stale PENDING appointments whose payment window
// has elapsed.  The window is soft: a confirmation arriving after
// expiry but before the sweep still wins, because both sides race
// through the same conditional update and the row's status decides.
type Sweeper struct {
	store    expiryStore
	window   time.Duration
	interval time.Duration
	logger   *logging.Logger
}

func NewSweeper(store expiryStore, window, interval time.Duration, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{store: store, window: window, interval: interval, logger: logger}
}

// Run sweeps on a fixed interval until the context is cancelled.
// Intended to be started as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started",
		"window", s.window.String(), "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce expires every PENDING appointment older than the payment
// window and returns how many were expired.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.window)
	n, err := s.store.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired stale pending appointments", "count", n)
	}
	return n, nil
}
