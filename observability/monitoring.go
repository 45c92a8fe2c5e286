// Package observability aggregates client-side counters: commands sent,
// events delivered, reconciliations, transport failures. The telemetry
// worker periodically logs a snapshot together with process self stats.
package observability

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Stats is one point-in-time snapshot of the counters.
type Stats struct {
	CommandsSent      uint64 `json:"commands_sent"`
	CommandsFailed    uint64 `json:"commands_failed"`
	EventsDelivered   uint64 `json:"events_delivered"`
	OffersResolved    uint64 `json:"offers_resolved"`
	StaleReconciled   uint64 `json:"stale_reconciled"`
	OpenConversations int64  `json:"open_conversations"`
	AllocMemMb        uint64 `json:"alloc_mem_mb"`
	NumGC             uint32 `json:"num_gc"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
}

// Monitor accumulates counters from the session layer and the transports.
// All increments are atomic; any goroutine may call them.
type Monitor struct {
	commandsSent    uint64
	commandsFailed  uint64
	eventsDelivered uint64
	offersResolved  uint64
	staleReconciled uint64
	openSessions    int64
	startedAt       time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{startedAt: time.Now()}
}

func (m *Monitor) IncrCommandsSent()    { atomic.AddUint64(&m.commandsSent, 1) }
func (m *Monitor) IncrCommandsFailed()  { atomic.AddUint64(&m.commandsFailed, 1) }
func (m *Monitor) IncrEventsDelivered() { atomic.AddUint64(&m.eventsDelivered, 1) }
func (m *Monitor) IncrOffersResolved()  { atomic.AddUint64(&m.offersResolved, 1) }
func (m *Monitor) IncrStaleReconciled() { atomic.AddUint64(&m.staleReconciled, 1) }

func (m *Monitor) SessionOpened() { atomic.AddInt64(&m.openSessions, 1) }
func (m *Monitor) SessionClosed() { atomic.AddInt64(&m.openSessions, -1) }

// Snapshot reads the counters and the Go runtime memory stats.
func (m *Monitor) Snapshot() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Stats{
		CommandsSent:      atomic.LoadUint64(&m.commandsSent),
		CommandsFailed:    atomic.LoadUint64(&m.commandsFailed),
		EventsDelivered:   atomic.LoadUint64(&m.eventsDelivered),
		OffersResolved:    atomic.LoadUint64(&m.offersResolved),
		StaleReconciled:   atomic.LoadUint64(&m.staleReconciled),
		OpenConversations: atomic.LoadInt64(&m.openSessions),
		AllocMemMb:        mem.Alloc / 1024 / 1024,
		NumGC:             mem.NumGC,
		UptimeSeconds:     int64(time.Since(m.startedAt).Seconds()),
	}
}
