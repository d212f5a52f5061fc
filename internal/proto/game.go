package proto

import (
	"fmt"
	"net/netip"
	"strings"
)

// ProtocolRevision must match between hosts for announcements to be shown.
const ProtocolRevision = "LL1"

// GameAnnouncement is the body of a game envelope: a host advertising a
// game lobby on the LAN.
type GameAnnouncement struct {
	Revision    string   `json:"revision"`
	GameVersion string   `json:"game_version"`
	GameID      string   `json:"game_id"`
	Map         string   `json:"map"`
	Mode        string   `json:"mode"`
	Players     []string `json:"players"`
	// Locked rooms are listed but not joinable.
	Locked bool `json:"locked"`
}

// Validate rejects announcements from another protocol revision and ones
// missing a game id or a host.
func (g GameAnnouncement) Validate(revision string) error {
	if g.Revision != revision {
		return fmt.Errorf("%w: revision %q, want %q", ErrBadAnnouncement, g.Revision, revision)
	}
	if strings.TrimSpace(g.GameID) == "" {
		return fmt.Errorf("%w: missing game id", ErrBadAnnouncement)
	}
	if len(g.Players) == 0 || g.Players[0] == "" {
		return fmt.Errorf("%w: no host player", ErrBadAnnouncement)
	}
	return nil
}

// HostName is the first listed player.
func (g GameAnnouncement) HostName() string {
	if len(g.Players) == 0 {
		return ""
	}
	return g.Players[0]
}

// RoomName is what lobby lists show, e.g. "Alice's Game [192.168.1.10]".
func (g GameAnnouncement) RoomName(host netip.Addr) string {
	name := g.HostName() + "'s Game"
	if host.IsValid() {
		name += " [" + host.String() + "]"
	}
	return name
}

// Incompatible reports whether the host runs a different game version.
func (g GameAnnouncement) Incompatible(gameVersion string) bool {
	return g.GameVersion != gameVersion
}
