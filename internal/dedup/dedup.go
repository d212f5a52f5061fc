// Package dedup tags outgoing LAN messages with a short random id and
// recognises ids it has already seen, so a datagram that arrives on several
// interfaces (or is re-broadcast) is handled once.
package dedup

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"lan-lobby/internal/metrics"
	"lan-lobby/internal/telemetry"
)

const (
	DefaultExpiration      = 60 * time.Second
	DefaultCleanupInterval = 30 * time.Second
)

// Config controls id generation and expiry.
type Config struct {
	// Seed feeds the id generator; fix it in tests for reproducible ids.
	Seed            int64
	Expiration      time.Duration
	CleanupInterval time.Duration
	Clock           clock.Clock
	Logger          telemetry.Logger
	Metrics         metrics.Metrics
}

// DefaultConfig returns the default settings with a time-based seed.
func DefaultConfig() Config {
	return Config{
		Seed:            time.Now().UnixNano(),
		Expiration:      DefaultExpiration,
		CleanupInterval: DefaultCleanupInterval,
	}
}

type entry struct {
	expires time.Time
}

type Deduplicator struct {
	expiration time.Duration
	clock      clock.Clock
	log        telemetry.Logger
	metrics    metrics.Metrics

	rngMu sync.Mutex
	rng   *rand.Rand

	// id -> *entry; a fresh pointer per insert so cleanup never removes an
	// entry that replaced the one it judged expired
	seen    sync.Map
	tracked atomic.Int64

	closed atomic.Bool
	stop   chan struct{}
	done   chan struct{}
}

// New creates a Deduplicator and starts its background cleanup.
// Call Close to stop it.
func New(cfg Config) *Deduplicator {
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultExpiration
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.Nop()
	}

	d := &Deduplicator{
		expiration: cfg.Expiration,
		clock:      cfg.Clock,
		log:        cfg.Logger,
		metrics:    metrics.OrNoop(cfg.Metrics),
		rng:        rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)>>1|1)),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	ticker := d.clock.Ticker(cfg.CleanupInterval)
	go d.cleanupLoop(ticker)
	return d
}

func (d *Deduplicator) cleanupLoop(ticker *clock.Ticker) {
	defer close(d.done)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			if n := d.CleanupExpired(); n > 0 {
				d.log.Debugw("expired message ids removed", "count", n)
			}
		}
	}
}

// WrapMessage prepends a fresh message id to payload.
func (d *Deduplicator) WrapMessage(payload string) string {
	return d.GenerateMessageID() + payload
}

// UnwrapMessage splits a tagged message into its payload and records the id.
// Input without a valid id prefix is returned whole and never counts as a
// duplicate, so untagged senders keep working.
func (d *Deduplicator) UnwrapMessage(wrapped string) (payload string, duplicate bool) {
	if len(wrapped) >= MessageIDLength {
		if id := wrapped[:MessageIDLength]; IsValidMessageID(id) {
			return wrapped[MessageIDLength:], d.AddMessage(id)
		}
	}
	return wrapped, false
}

// AddMessage records id and reports whether it was already present.
// The check and the insert are one atomic step, so two listeners racing on
// the same id see exactly one "new". An empty id is never a duplicate.
func (d *Deduplicator) AddMessage(id string) (duplicate bool) {
	if id == "" {
		return false
	}
	_, loaded := d.seen.LoadOrStore(id, &entry{expires: d.clock.Now().Add(d.expiration)})
	if !loaded {
		d.metrics.SetTrackedIDs(int(d.tracked.Add(1)))
	}
	return loaded
}

// CleanupExpired drops every id whose expiry has passed and returns how many
// were removed. O(n) in tracked ids.
func (d *Deduplicator) CleanupExpired() int {
	if d.closed.Load() {
		return 0
	}

	return d.removeEntries(d.expiredEntries(d.clock.Now()))
}

type seenEntry struct {
	id string
	e  *entry
}

func (d *Deduplicator) expiredEntries(now time.Time) []seenEntry {
	var out []seenEntry
	d.seen.Range(func(k, v any) bool {
		if e := v.(*entry); now.After(e.expires) {
			out = append(out, seenEntry{id: k.(string), e: e})
		}
		return true
	})
	return out
}

// removeEntries deletes each id only if it still maps to the captured entry.
// An id re-added in the meantime stays.
func (d *Deduplicator) removeEntries(entries []seenEntry) int {
	removed := 0
	for _, se := range entries {
		if d.seen.CompareAndDelete(se.id, se.e) {
			removed++
			d.tracked.Add(-1)
		}
	}
	d.metrics.SetTrackedIDs(d.TrackedMessageCount())
	return removed
}

// TrackedMessageCount returns how many ids are currently remembered.
func (d *Deduplicator) TrackedMessageCount() int {
	return int(d.tracked.Load())
}

// Clear forgets every tracked id.
func (d *Deduplicator) Clear() {
	d.seen.Range(func(k, _ any) bool {
		if _, ok := d.seen.LoadAndDelete(k); ok {
			d.tracked.Add(-1)
		}
		return true
	})
	d.metrics.SetTrackedIDs(d.TrackedMessageCount())
}

// Close stops the cleanup loop. It is safe to call more than once; once it
// returns no cleanup pass is running.
func (d *Deduplicator) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(d.stop)
	<-d.done
	return nil
}
