package workers

import (
	"context"
	"log/slog"
	"time"

	"nego-lab/contract"
	"nego-lab/domain"
	"nego-lab/transport"
)

const defaultPresenceInterval = 60 * time.Second

// PresenceWorker re-announces online/away on an interval so the server's
// presence table never goes stale between visibility changes. Advisory:
// a failed update is logged and retried on the next tick.
type PresenceWorker struct {
	log        *slog.Logger
	transport  contract.Transport
	visibility *transport.Visibility
	interval   time.Duration
}

func NewPresenceWorker(log *slog.Logger, tr contract.Transport,
	visibility *transport.Visibility, interval time.Duration) *PresenceWorker {
	if interval <= 0 {
		interval = defaultPresenceInterval
	}
	return &PresenceWorker{log: log, transport: tr, visibility: visibility, interval: interval}
}

func (w *PresenceWorker) Run(ctx context.Context) error {
	w.log.Info("Starting presence heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status := domain.PresenceOnline
			if w.visibility != nil && !w.visibility.Visible() {
				status = domain.PresenceAway
			}
			if _, err := w.transport.Send(ctx, domain.PresenceCommand{Status: status}); err != nil {
				w.log.Debug("Presence heartbeat lost", "status", status, "error", err)
			}
		}
	}
}
