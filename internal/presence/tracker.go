// Package presence tracks which players are currently visible on the LAN and
// mirrors them into a caller-owned display list.
//
// Players are keyed by endpoint, the display list by name. Two endpoints that
// share a name get a single list entry, which stays until the last of them is
// removed.
package presence

import (
	"errors"
	"net/netip"
	"sync"
	"time"
)

var ErrNilDisplayList = errors.New("presence: nil display list")

// Tracker owns the endpoint -> player map and keeps the display list in step
// with it. All operations take one lock so map and list are never observed
// half-updated.
type Tracker struct {
	mu        sync.Mutex
	players   map[string]*Player
	nameIndex map[string]int
	list      DisplayList
}

func NewTracker(list DisplayList) (*Tracker, error) {
	if list == nil {
		return nil, ErrNilDisplayList
	}
	return &Tracker{
		players:   make(map[string]*Player),
		nameIndex: make(map[string]int),
		list:      list,
	}, nil
}

func endpointKey(ep netip.AddrPort) string {
	return ep.String()
}

// GetOrCreatePlayer returns the player at ep, creating it on first sighting.
// An existing player is returned unchanged even if name or icon differ.
func (t *Tracker) GetOrCreatePlayer(ep netip.AddrPort, name string, icon Icon) (p *Player, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := endpointKey(ep)
	if p, ok := t.players[key]; ok {
		return p, false
	}

	p = newPlayer(name, icon, ep)
	t.players[key] = p

	if _, shown := t.nameIndex[name]; !shown {
		t.nameIndex[name] = t.list.Len()
		t.list.AddItem(name, icon)
	}
	return p, true
}

// GetPlayerIfExists returns the player at ep or nil.
func (t *Tracker) GetPlayerIfExists(ep netip.AddrPort) *Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.players[endpointKey(ep)]
}

// RemovePlayer forgets the player at ep and reports whether it was tracked.
func (t *Tracker) RemovePlayer(ep netip.AddrPort) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(endpointKey(ep))
}

func (t *Tracker) removeLocked(key string) bool {
	p, ok := t.players[key]
	if !ok {
		return false
	}
	delete(t.players, key)

	for _, other := range t.players {
		if other.name == p.name {
			return true
		}
	}

	idx, shown := t.nameIndex[p.name]
	if !shown {
		return true
	}
	delete(t.nameIndex, p.name)
	t.list.RemoveItem(idx)
	for name, i := range t.nameIndex {
		if i > idx {
			t.nameIndex[name] = i - 1
		}
	}
	return true
}

// AllPlayers returns a snapshot in no particular order.
func (t *Tracker) AllPlayers() []*Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Player, 0, len(t.players))
	for _, p := range t.players {
		out = append(out, p)
	}
	return out
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.players)
}

// Clear empties the tracker and the display list.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.players)
	clear(t.nameIndex)
	t.list.Clear()
}

// Touch marks the player at ep as just heard from.
func (t *Tracker) Touch(ep netip.AddrPort) bool {
	p := t.GetPlayerIfExists(ep)
	if p == nil {
		return false
	}
	p.ClearTimeWithoutRefresh()
	return true
}

// Sweep ages every player by elapsed and removes those that have gone longer
// than timeout without a refresh. The removed players are returned.
func (t *Tracker) Sweep(elapsed, timeout time.Duration) []*Player {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []string
	for key, p := range t.players {
		if p.AddToTimeWithoutRefresh(elapsed) > timeout {
			stale = append(stale, key)
		}
	}

	var removed []*Player
	for _, key := range stale {
		p := t.players[key]
		if t.removeLocked(key) {
			removed = append(removed, p)
		}
	}
	return removed
}
