package lobby

import (
	"context"
	"errors"
	"time"

	"lan-lobby/internal/discovery"
	"lan-lobby/internal/metrics"
	"lan-lobby/internal/presence"
	"lan-lobby/internal/proto"
	"lan-lobby/internal/storage/playersbolt"
	"lan-lobby/internal/uiutil"
)

func (a *App) pumpInbound(ctx context.Context) error {
	in := a.transport.Incoming()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-in:
			a.handleMessage(msg)
		}
	}
}

func (a *App) handleMessage(msg discovery.Message) {
	payload, dup := a.dedup.UnwrapMessage(msg.Payload)
	if dup {
		a.metrics.IncDuplicate()
		return
	}

	env, err := proto.Decode(payload)
	if err != nil {
		a.metrics.IncDropped(metrics.DropMalformed)
		a.log.Debugw("dropping lobby datagram", "from", msg.From, "err", err)
		return
	}
	if env.Session == a.session {
		a.metrics.IncDropped(metrics.DropSelf)
		return
	}

	switch env.Type {
	case proto.MsgAlive:
		a.notePlayer(msg, env)
	case proto.MsgChat:
		a.notePlayer(msg, env)
		a.handleChat(msg, env)
	case proto.MsgGame:
		a.notePlayer(msg, env)
		a.handleGame(msg, env)
	case proto.MsgQuit:
		a.handleQuit(msg)
	}
}

// notePlayer creates or refreshes the sender's presence entry.
func (a *App) notePlayer(msg discovery.Message, env proto.Envelope) *presence.Player {
	p, created := a.tracker.GetOrCreatePlayer(msg.From, env.Name, uiutil.PickColor(env.Name))
	a.tracker.Touch(msg.From)
	via := msg.Interface()
	if via != "" {
		p.SetVia(via)
	}

	if created {
		a.ui.Printf("[LOBBY] %s joined from %s\n", formatName(p.Name(), msg.From.String()), msg.From)
		a.metrics.SetPlayers(a.tracker.Count())
	}
	if a.store != nil {
		err := a.store.NoteSighting(playersbolt.Sighting{
			Endpoint: msg.From.String(),
			Name:     env.Name,
			Via:      via,
			LastSeen: a.clock.Now(),
		})
		if err != nil {
			a.log.Warnw("record sighting", "endpoint", msg.From, "err", err)
		}
	}
	return p
}

func (a *App) handleChat(msg discovery.Message, env proto.Envelope) {
	chat, err := proto.DecodeBody[proto.Chat](env)
	if err != nil {
		a.metrics.IncDropped(metrics.DropMalformed)
		a.log.Debugw("bad chat payload", "from", msg.From, "err", err)
		return
	}

	ts := time.Unix(chat.Timestamp, 0).Format("15:04:05")
	a.ui.Printf("%s %s: %s\n", dim("["+ts+"]"), formatName(env.Name, msg.From.String()), chat.Text)
}

func (a *App) handleGame(msg discovery.Message, env proto.Envelope) {
	ann, err := proto.DecodeBody[proto.GameAnnouncement](env)
	if err == nil {
		err = ann.Validate(proto.ProtocolRevision)
	}
	if err != nil {
		if errors.Is(err, proto.ErrBadAnnouncement) {
			a.log.Debugw("ignoring game announcement", "from", msg.From, "err", err)
		}
		a.metrics.IncDropped(metrics.DropMalformed)
		return
	}

	if a.games.upsert(msg.From, ann, a.cfg.GameVersion) {
		g := HostedGame{Host: msg.From, Announcement: ann}
		a.ui.Printf("[GAME] %s: %s (%s)\n", g.RoomName(), ann.Map, ann.Mode)
	}
}

func (a *App) handleQuit(msg discovery.Message) {
	if p := a.tracker.GetPlayerIfExists(msg.From); p != nil && a.tracker.RemovePlayer(msg.From) {
		a.ui.Printf("[LOBBY] %s left\n", formatName(p.Name(), msg.From.String()))
		a.metrics.SetPlayers(a.tracker.Count())
	}
	if g, ok := a.games.remove(msg.From); ok {
		a.ui.Printf("[GAME] %s closed\n", g.RoomName())
	}
}
