package presence

import (
	"net/netip"
	"sync"
	"time"
)

// Icon is whatever the display layer uses to draw a player's game; the
// tracker only passes it through.
type Icon any

// Player is one endpoint seen on the LAN. Name, icon and endpoint never
// change after creation.
type Player struct {
	name     string
	icon     Icon
	endpoint netip.AddrPort

	mu                 sync.Mutex
	timeWithoutRefresh time.Duration
	via                string
}

func newPlayer(name string, icon Icon, ep netip.AddrPort) *Player {
	return &Player{name: name, icon: icon, endpoint: ep}
}

func (p *Player) Name() string             { return p.name }
func (p *Player) Icon() Icon               { return p.icon }
func (p *Player) Endpoint() netip.AddrPort { return p.endpoint }

// TimeWithoutRefresh is how long it has been since the player was last heard.
func (p *Player) TimeWithoutRefresh() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeWithoutRefresh
}

func (p *Player) ClearTimeWithoutRefresh() {
	p.mu.Lock()
	p.timeWithoutRefresh = 0
	p.mu.Unlock()
}

// AddToTimeWithoutRefresh adds d and returns the new total.
func (p *Player) AddToTimeWithoutRefresh(d time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeWithoutRefresh += d
	return p.timeWithoutRefresh
}

// Via is the local interface the player was last heard on, if known.
func (p *Player) Via() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.via
}

func (p *Player) SetVia(iface string) {
	p.mu.Lock()
	p.via = iface
	p.mu.Unlock()
}
