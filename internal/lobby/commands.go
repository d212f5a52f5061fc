package lobby

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	"lan-lobby/internal/proto"
	"lan-lobby/internal/uiutil"
)

// ErrQuit is returned by HandleCommand when the user asked to leave.
var ErrQuit = errors.New("quit requested")

// ReadCommands feeds lines from r to HandleCommand until r ends, the user
// quits (ErrQuit) or ctx is done.
func (a *App) ReadCommands(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := a.HandleCommand(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// HandleCommand runs one line of user input. Plain text without a leading
// slash is sent as chat.
func (a *App) HandleCommand(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	if !strings.HasPrefix(line, "/") {
		a.say(line)
		return nil
	}

	switch cmd {
	case "/quit", "/exit":
		a.ui.Println("quitting...")
		return ErrQuit

	case "/say":
		if rest == "" {
			a.ui.Println("usage: /say <message>")
			return nil
		}
		a.say(rest)

	case "/players":
		a.printPlayers()

	case "/games":
		a.printGames()

	case "/host":
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			a.ui.Println("usage: /host <map> <mode>")
			return nil
		}
		ann := proto.GameAnnouncement{
			Revision:    proto.ProtocolRevision,
			GameVersion: a.cfg.GameVersion,
			GameID:      a.cfg.GameID,
			Map:         parts[0],
			Mode:        parts[1],
			Players:     []string{a.cfg.Name},
		}
		a.hosting.Store(&ann)
		if !a.send(proto.NewEnvelope(proto.MsgGame, a.session, a.cfg.Name, ann)) {
			a.ui.Println(uiutil.Warn("game announcement not sent (no interfaces?)"))
			return nil
		}
		a.ui.Printf("[GAME] hosting %s (%s)\n", ann.Map, ann.Mode)

	case "/unhost":
		if a.hosting.Swap(nil) == nil {
			a.ui.Println("not hosting")
			return nil
		}
		a.ui.Println("[GAME] stopped hosting")

	case "/lock", "/unlock":
		cur := a.hosting.Load()
		if cur == nil {
			a.ui.Println("not hosting")
			return nil
		}
		next := *cur
		next.Players = append([]string(nil), cur.Players...)
		next.Locked = cmd == "/lock"
		a.hosting.Store(&next)
		if !a.send(proto.NewEnvelope(proto.MsgGame, a.session, a.cfg.Name, next)) {
			a.ui.Println(uiutil.Warn("game announcement not sent (no interfaces?)"))
			return nil
		}
		if next.Locked {
			a.ui.Println("[GAME] room locked")
		} else {
			a.ui.Println("[GAME] room open")
		}

	case "/ifaces":
		a.printInterfaces()

	case "/history":
		a.printHistory()

	default:
		a.ui.Println("unknown command")
		PrintCommands(a.ui)
	}
	return nil
}

func (a *App) say(text string) {
	if !a.chat.Allow() {
		a.ui.Println(uiutil.Warn("slow down: chat rate limit"))
		return
	}
	chat := proto.Chat{Text: text, Timestamp: a.clock.Now().Unix()}
	if !a.send(proto.NewEnvelope(proto.MsgChat, a.session, a.cfg.Name, chat)) {
		a.ui.Println(uiutil.Warn("message not sent (no interfaces?)"))
	}
}

func (a *App) printPlayers() {
	players := a.tracker.AllPlayers()
	if len(players) == 0 {
		a.ui.Println("nobody else here yet")
		return
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Name() != players[j].Name() {
			return players[i].Name() < players[j].Name()
		}
		return players[i].Endpoint().String() < players[j].Endpoint().String()
	})

	a.ui.Println()
	a.ui.Println(uiutil.Heading("Players"))
	a.ui.Printf("%-16s  %-22s  %-16s  %s\n", "NAME", "ENDPOINT", "VIA", "QUIET")
	for _, p := range players {
		via := p.Via()
		if via == "" {
			via = "-"
		}
		a.ui.Printf("%-16s  %-22s  %-16s  %s\n", formatName(p.Name(), p.Endpoint().String()), p.Endpoint(), via, p.TimeWithoutRefresh())
	}
	a.ui.Println()
}

func (a *App) printGames() {
	games := a.games.snapshot()
	if len(games) == 0 {
		a.ui.Println("no games hosted")
		return
	}
	a.ui.Println()
	a.ui.Println(uiutil.Heading("Games"))
	for _, g := range games {
		flags := ""
		if g.Announcement.Locked {
			flags += " [locked]"
		}
		if g.Incompatible {
			flags += " [incompatible]"
		}
		a.ui.Printf("  %-32s  %-16s  %-12s  %d players%s\n",
			g.RoomName(), g.Announcement.Map, g.Announcement.Mode, len(g.Announcement.Players), flags)
	}
	a.ui.Println()
}

func (a *App) printInterfaces() {
	ifaces := a.transport.Interfaces()
	if len(ifaces) == 0 {
		a.ui.Println("no broadcast interfaces")
		return
	}
	a.ui.Println()
	a.ui.Println(uiutil.Heading("Interfaces"))
	for _, bi := range ifaces {
		a.ui.Printf("  %-12s  %-15s -> %s\n", bi.Name, bi.Local, bi.Target())
	}
	a.ui.Println()
}

func (a *App) printHistory() {
	if a.store == nil {
		a.ui.Println("history disabled")
		return
	}
	recent, err := a.store.Recent(10)
	if err != nil {
		a.ui.Printf("history: %v\n", err)
		return
	}
	if len(recent) == 0 {
		a.ui.Println("nobody seen yet")
		return
	}
	a.ui.Println()
	a.ui.Println(uiutil.Heading("Recently seen"))
	for _, s := range recent {
		a.ui.Printf("  %-16s  %-22s  %s  (%dx)\n",
			formatName(s.Name, s.Endpoint), s.Endpoint, s.LastSeen.Format("2006-01-02 15:04:05"), s.Count)
	}
	a.ui.Println()
}
