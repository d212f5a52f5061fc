// Package lobby is the LAN lobby itself: it announces this player, tracks
// everyone else who announces, relays chat and lists hosted games, all over
// the broadcast transport.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"lan-lobby/internal/appdata"
	"lan-lobby/internal/dedup"
	"lan-lobby/internal/discovery"
	"lan-lobby/internal/metrics"
	"lan-lobby/internal/presence"
	"lan-lobby/internal/proto"
	"lan-lobby/internal/storage/playersbolt"
	"lan-lobby/internal/telemetry"
)

// Transport is the broadcast socket the lobby talks through.
// *discovery.BroadcastManager implements it.
type Transport interface {
	Initialize() error
	SendMessage(text string) bool
	Incoming() <-chan discovery.Message
	Interfaces() []discovery.BroadcastInterface
	LocalAddr() netip.AddrPort
	Close() error
}

// SightingStore persists who has been seen. *playersbolt.Store implements it.
type SightingStore interface {
	NoteSighting(playersbolt.Sighting) error
	Recent(n int) ([]playersbolt.Sighting, error)
	Close() error
}

var (
	_ Transport     = (*discovery.BroadcastManager)(nil)
	_ SightingStore = (*playersbolt.Store)(nil)
)

// Deps lets callers supply prebuilt collaborators. Anything left nil is
// built from Config.
type Deps struct {
	Transport Transport
	Dedup     *dedup.Deduplicator
	Store     SightingStore
	Metrics   metrics.Metrics
	Logger    telemetry.Logger
	Printer   Printer
	Clock     clock.Clock
}

type App struct {
	cfg     Config
	ui      Printer
	log     telemetry.Logger
	clock   clock.Clock
	metrics metrics.Metrics

	transport Transport
	dedup     *dedup.Deduplicator
	store     SightingStore

	players *presence.ItemList
	tracker *presence.Tracker
	games   *gameTable

	session string
	chat    *rate.Limiter
	hosting atomic.Pointer[proto.GameAnnouncement]

	started  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

func New(cfg Config, deps Deps) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lobby config: %w", err)
	}

	if deps.Logger == nil {
		deps.Logger = telemetry.Nop()
	}
	if deps.Printer == nil {
		pr := NewStdPrinter(os.Stdout)
		pr.SetPrompt("> ")
		deps.Printer = pr
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	deps.Metrics = metrics.OrNoop(deps.Metrics)

	if deps.Dedup == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		deps.Dedup = dedup.New(dedup.Config{
			Seed:       seed,
			Expiration: cfg.DedupExpiry,
			Clock:      deps.Clock,
			Logger:     telemetry.Named(deps.Logger, "dedup"),
			Metrics:    deps.Metrics,
		})
	}
	if deps.Transport == nil {
		enc, err := ResolveEncoding(cfg.Encoding)
		if err != nil {
			return nil, err
		}
		deps.Transport = discovery.NewBroadcastManager(discovery.Config{
			Port:      cfg.Port,
			Encoding:  enc,
			ReuseAddr: cfg.ReuseAddr,
			Clock:     deps.Clock,
			Logger:    deps.Logger,
			Metrics:   deps.Metrics,
		})
	}
	if deps.Store == nil {
		st, err := OpenHistory(cfg, deps.Logger)
		if err != nil {
			return nil, err
		}
		deps.Store = st
	}

	players := &presence.ItemList{}
	tracker, err := presence.NewTracker(players)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		ui:        deps.Printer,
		log:       deps.Logger,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		transport: deps.Transport,
		dedup:     deps.Dedup,
		store:     deps.Store,
		players:   players,
		tracker:   tracker,
		games:     newGameTable(),
		session:   uuid.NewString(),
		chat:      rate.NewLimiter(rate.Limit(cfg.ChatRate), cfg.ChatBurst),
	}, nil
}

// Start binds the socket and announces this player once.
func (a *App) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.transport.Initialize(); err != nil {
		return fmt.Errorf("start lobby: %w", err)
	}
	a.started.Store(true)
	a.announce()
	PrintBanner(a.ui, a)
	return nil
}

// Run pumps inbound datagrams and drives the announce and sweep timers until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.pumpInbound(ctx) })
	g.Go(func() error { return a.announceLoop(ctx) })
	g.Go(func() error { return a.sweepLoop(ctx) })
	return g.Wait()
}

// Stop says goodbye on the LAN and releases the socket, the deduplicator and
// the history store. Only the first call does anything.
func (a *App) Stop() error {
	a.stopOnce.Do(func() {
		if a.started.Load() {
			if !a.send(proto.NewEnvelope(proto.MsgQuit, a.session, a.cfg.Name, nil)) {
				a.log.Debugw("quit message not sent")
			}
		}

		var errs error
		errs = multierr.Append(errs, a.transport.Close())
		errs = multierr.Append(errs, a.dedup.Close())
		if a.store != nil {
			errs = multierr.Append(errs, a.store.Close())
		}
		a.stopErr = errs
	})
	return a.stopErr
}

// OpenHistory opens the sighting store under cfg.DataDir. The store is nil
// when history is off, or when another lobby on this host already holds the
// file: a second instance runs without history rather than not at all.
func OpenHistory(cfg Config, log telemetry.Logger) (SightingStore, error) {
	if cfg.NoHistory {
		return nil, nil
	}
	if log == nil {
		log = telemetry.Nop()
	}

	path := appdata.Path(cfg.DataDir, filepath.Join("db", "players.db"))
	st, err := playersbolt.Open(path)
	switch {
	case errors.Is(err, playersbolt.ErrLocked):
		log.Warnw("sighting history busy, running without it", "path", path)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("open sighting history: %w", err)
	}
	return st, nil
}

func (a *App) Session() string                 { return a.session }
func (a *App) Name() string                    { return a.cfg.Name }
func (a *App) Tracker() *presence.Tracker      { return a.tracker }
func (a *App) DisplayList() *presence.ItemList { return a.players }
func (a *App) Games() []HostedGame             { return a.games.snapshot() }

// send wraps env with a fresh message id and broadcasts it.
func (a *App) send(env proto.Envelope) bool {
	text, err := proto.Encode(env)
	if err != nil {
		a.log.Errorw("encode outgoing", "type", env.Type, "err", err)
		return false
	}
	return a.transport.SendMessage(a.dedup.WrapMessage(text))
}

// announce broadcasts the alive beacon, plus the hosted game if any.
func (a *App) announce() {
	if !a.send(proto.NewEnvelope(proto.MsgAlive, a.session, a.cfg.Name, nil)) {
		a.log.Debugw("alive beacon not sent")
	}
	if ann := a.hosting.Load(); ann != nil {
		a.send(proto.NewEnvelope(proto.MsgGame, a.session, a.cfg.Name, *ann))
	}
}

func (a *App) announceLoop(ctx context.Context) error {
	t := a.clock.Ticker(a.cfg.AnnounceInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			a.announce()
		}
	}
}

func (a *App) sweepLoop(ctx context.Context) error {
	t := a.clock.Ticker(a.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			a.sweep(a.cfg.SweepInterval)
		}
	}
}

// sweep ages players and games by elapsed and drops the stale ones.
func (a *App) sweep(elapsed time.Duration) {
	for _, p := range a.tracker.Sweep(elapsed, a.cfg.StaleAfter) {
		a.ui.Printf("[LOBBY] %s timed out\n", formatName(p.Name(), p.Endpoint().String()))
	}
	for _, g := range a.games.sweep(elapsed, a.cfg.StaleAfter) {
		a.ui.Printf("[GAME] %s is gone\n", g.RoomName())
	}
	a.metrics.SetPlayers(a.tracker.Count())
}
