package lobby

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"lan-lobby/internal/proto"
)

// HostedGame is a game announced by another lobby on the LAN.
type HostedGame struct {
	Host               netip.AddrPort
	Announcement       proto.GameAnnouncement
	Incompatible       bool
	TimeWithoutRefresh time.Duration
}

func (g HostedGame) RoomName() string {
	return g.Announcement.RoomName(g.Host.Addr())
}

// gameTable holds the latest announcement per host endpoint.
type gameTable struct {
	mu    sync.Mutex
	games map[netip.AddrPort]*HostedGame
}

func newGameTable() *gameTable {
	return &gameTable{games: make(map[netip.AddrPort]*HostedGame)}
}

// upsert stores ann as host's game and reports whether the host is new.
func (t *gameTable) upsert(host netip.AddrPort, ann proto.GameAnnouncement, gameVersion string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.games[host]
	t.games[host] = &HostedGame{
		Host:         host,
		Announcement: ann,
		Incompatible: ann.Incompatible(gameVersion),
	}
	return !exists
}

func (t *gameTable) remove(host netip.AddrPort) (HostedGame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.games[host]
	if !ok {
		return HostedGame{}, false
	}
	delete(t.games, host)
	return *g, true
}

// sweep ages every game and drops the ones not refreshed within timeout.
func (t *gameTable) sweep(elapsed, timeout time.Duration) []HostedGame {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []HostedGame
	for host, g := range t.games {
		g.TimeWithoutRefresh += elapsed
		if g.TimeWithoutRefresh > timeout {
			out = append(out, *g)
			delete(t.games, host)
		}
	}
	return out
}

func (t *gameTable) snapshot() []HostedGame {
	t.mu.Lock()
	out := make([]HostedGame, 0, len(t.games))
	for _, g := range t.games {
		out = append(out, *g)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RoomName() < out[j].RoomName()
	})
	return out
}
