package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"nego-lab/observability"
)

const defaultTelemetryInterval = 30 * time.Second

// TelemetryWorker periodically logs the client counters together with
// process self stats (RSS, CPU, OS status).
type TelemetryWorker struct {
	log      *slog.Logger
	monitor  *observability.Monitor
	interval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, monitor *observability.Monitor,
	interval time.Duration) *TelemetryWorker {
	if interval <= 0 {
		interval = defaultTelemetryInterval
	}
	return &TelemetryWorker{log: log, monitor: monitor, interval: interval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	w.log.Info("Starting telemetry worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := w.monitor.Snapshot()
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			w.log.Info("Client telemetry",
				"commands_sent", stats.CommandsSent,
				"commands_failed", stats.CommandsFailed,
				"events_delivered", stats.EventsDelivered,
				"offers_resolved", stats.OffersResolved,
				"stale_reconciled", stats.StaleReconciled,
				"open_conversations", stats.OpenConversations,
				"alloc_mem_mb", stats.AllocMemMb,
				"num_gc", stats.NumGC,
				"rss_bytes", rss,
				"cpu_percent", cpu,
				"pid_status", status,
			)
		}
	}
}

// selfStats retrieves technical metrics (memory, CPU and OS status) for the
// given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
