package metrics

import (
	"sync"
	"sync/atomic"
)

// AtomicMetrics keeps plain counters in memory. Handy in tests and for the
// /stats command when Prometheus is not wanted.
type AtomicMetrics struct {
	sentOK     atomic.Uint64
	sentFail   atomic.Uint64
	received   atomic.Uint64
	duplicates atomic.Uint64
	interfaces atomic.Int64
	players    atomic.Int64
	trackedIDs atomic.Int64

	mu      sync.Mutex
	dropped map[string]uint64
}

func (m *AtomicMetrics) IncSent(iface string, ok bool) {
	if ok {
		m.sentOK.Add(1)
	} else {
		m.sentFail.Add(1)
	}
}

func (m *AtomicMetrics) IncReceived()  { m.received.Add(1) }
func (m *AtomicMetrics) IncDuplicate() { m.duplicates.Add(1) }

func (m *AtomicMetrics) IncDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropped == nil {
		m.dropped = make(map[string]uint64)
	}
	m.dropped[reason]++
}

func (m *AtomicMetrics) SetInterfaces(n int) { m.interfaces.Store(int64(n)) }
func (m *AtomicMetrics) SetPlayers(n int)    { m.players.Store(int64(n)) }
func (m *AtomicMetrics) SetTrackedIDs(n int) { m.trackedIDs.Store(int64(n)) }

// Dropped returns how many datagrams were dropped for reason.
func (m *AtomicMetrics) Dropped(reason string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

func (m *AtomicMetrics) Snapshot() map[string]uint64 {
	out := map[string]uint64{
		"sent_ok":     m.sentOK.Load(),
		"sent_fail":   m.sentFail.Load(),
		"received":    m.received.Load(),
		"duplicates":  m.duplicates.Load(),
		"interfaces":  uint64(m.interfaces.Load()),
		"players":     uint64(m.players.Load()),
		"tracked_ids": uint64(m.trackedIDs.Load()),
	}
	m.mu.Lock()
	for reason, n := range m.dropped {
		out["dropped_"+reason] = n
	}
	m.mu.Unlock()
	return out
}
