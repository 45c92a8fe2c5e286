package workers

import (
	"context"
	"log/slog"
	"time"
)

const defaultExpiryInterval = 30 * time.Second

// ExpirySweeper runs the local offer expiry check over the open sessions.
type ExpirySweeper interface {
	ExpireDue(now time.Time)
}

// ExpiryWorker ticks the expiry sweep. The sweep only transitions offers
// the local user received; an authoritative server resolution arriving
// later still overrides whatever the sweep decided.
type ExpiryWorker struct {
	log      *slog.Logger
	sweeper  ExpirySweeper
	interval time.Duration
	now      func() time.Time
}

func NewExpiryWorker(log *slog.Logger, sweeper ExpirySweeper, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = defaultExpiryInterval
	}
	return &ExpiryWorker{
		log:      log,
		sweeper:  sweeper,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info("Starting offer expiry worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweeper.ExpireDue(w.now())
		}
	}
}
