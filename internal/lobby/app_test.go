package lobby

import (
	"context"
	"errors"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lan-lobby/internal/metrics"
	"lan-lobby/internal/proto"
	"lan-lobby/internal/storage/playersbolt"
)

func TestStartAnnouncesAlive(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	require.NoError(t, h.app.Start(context.Background()))

	sent := h.transport.Sent()
	require.Len(t, sent, 1)
	env := decodeSent(t, sent[0])
	assert.Equal(t, proto.MsgAlive, env.Type)
	assert.Equal(t, "Alice", env.Name)
	assert.Equal(t, h.app.Session(), env.Session)
	assert.Contains(t, h.out.String(), "LAN lobby started.")
}

func TestStartFailsWhenBindFails(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.transport.initErr = errors.New("address in use")

	err := h.app.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start lobby")
	assert.Empty(t, h.transport.Sent())
}

func TestAliveCreatesPlayer(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.app.handleMessage(h.datagram(t, "10.0.0.2:42069", proto.NewEnvelope(proto.MsgAlive, "bob-session", "Bob", nil)))

	require.Equal(t, 1, h.app.Tracker().Count())
	assert.Equal(t, []string{"Bob"}, h.app.DisplayList().Names())
	assert.Contains(t, h.out.String(), "joined from 10.0.0.2:42069")
	assert.EqualValues(t, 1, h.metrics.Snapshot()["players"])
}

func TestDuplicateDatagramHandledOnce(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	// same datagram arriving on two interfaces
	msg := h.datagram(t, "10.0.0.2:42069", proto.NewEnvelope(proto.MsgChat, "bob-session", "Bob", proto.Chat{Text: "hi", Timestamp: 1}))
	h.app.handleMessage(msg)
	h.app.handleMessage(msg)

	assert.Equal(t, 1, strings.Count(h.out.String(), ": hi"))
	assert.EqualValues(t, 1, h.metrics.Snapshot()["duplicates"])
}

func TestOwnBroadcastIgnored(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.app.handleMessage(h.datagram(t, "10.0.0.5:42069", proto.NewEnvelope(proto.MsgAlive, h.app.Session(), "Alice", nil)))

	assert.Zero(t, h.app.Tracker().Count())
	assert.EqualValues(t, 1, h.metrics.Dropped(metrics.DropSelf))
}

func TestMalformedDropped(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.app.handleMessage(h.datagram(t, "10.0.0.2:1", proto.Envelope{Type: proto.MsgChat, Session: "x", Name: "Bob"}))
	h.app.handleMessage(rawDatagram("10.0.0.2:1", "MID_ABCDEFGHnot json"))

	assert.EqualValues(t, 2, h.metrics.Dropped(metrics.DropMalformed))
}

func TestQuitRemovesPlayerAndGame(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	bob := "10.0.0.2:42069"

	h.app.handleMessage(h.datagram(t, bob, proto.NewEnvelope(proto.MsgAlive, "bob", "Bob", nil)))
	h.app.handleMessage(h.datagram(t, bob, proto.NewEnvelope(proto.MsgGame, "bob", "Bob", proto.GameAnnouncement{
		Revision: proto.ProtocolRevision,
		GameID:   "LAN",
		Map:      "Dustbowl",
		Mode:     "Standard",
		Players:  []string{"Bob"},
	})))
	require.Len(t, h.app.Games(), 1)
	assert.Equal(t, "Bob's Game [10.0.0.2]", h.app.Games()[0].RoomName())

	h.app.handleMessage(h.datagram(t, bob, proto.NewEnvelope(proto.MsgQuit, "bob", "Bob", nil)))

	assert.Zero(t, h.app.Tracker().Count())
	assert.Empty(t, h.app.DisplayList().Names())
	assert.Empty(t, h.app.Games())
	assert.Contains(t, h.out.String(), "left")
}

func TestGameFromOtherRevisionIgnored(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	h.app.handleMessage(h.datagram(t, "10.0.0.2:1", proto.NewEnvelope(proto.MsgGame, "bob", "Bob", proto.GameAnnouncement{
		Revision: "LL0",
		GameID:   "LAN",
		Players:  []string{"Bob"},
	})))

	assert.Empty(t, h.app.Games())
	assert.EqualValues(t, 1, h.metrics.Dropped(metrics.DropMalformed))
	assert.Equal(t, 1, h.app.Tracker().Count(), "the sender is still visible")
}

func TestSweepDropsQuietPlayers(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, nil)

	h.app.handleMessage(h.datagram(t, "10.0.0.2:1", proto.NewEnvelope(proto.MsgAlive, "bob", "Bob", nil)))
	h.app.handleMessage(h.datagram(t, "10.0.0.3:1", proto.NewEnvelope(proto.MsgAlive, "carol", "Carol", nil)))

	steps := int(cfg.StaleAfter / cfg.SweepInterval)
	for i := 0; i < steps; i++ {
		h.app.sweep(cfg.SweepInterval)
		if i == steps/2 {
			// Carol keeps announcing
			h.app.handleMessage(h.datagram(t, "10.0.0.3:1", proto.NewEnvelope(proto.MsgAlive, "carol", "Carol", nil)))
		}
	}
	h.app.sweep(cfg.SweepInterval)

	assert.Equal(t, []string{"Carol"}, h.app.DisplayList().Names())
	assert.Contains(t, h.out.String(), "timed out")
}

func TestSightingsRecorded(t *testing.T) {
	store, err := playersbolt.Open(filepath.Join(t.TempDir(), "players.db"))
	require.NoError(t, err)
	h := newHarness(t, testConfig(), store)

	h.app.handleMessage(h.datagram(t, "10.0.0.2:42069", proto.NewEnvelope(proto.MsgAlive, "bob", "Bob", nil)))
	h.app.handleMessage(h.datagram(t, "10.0.0.2:42069", proto.NewEnvelope(proto.MsgAlive, "bob", "Bob", nil)))

	got, ok, err := store.Get("10.0.0.2:42069")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2, got.Count)

	require.NoError(t, h.app.HandleCommand("/history"))
	assert.Contains(t, h.out.String(), "(2x)")
}

func TestReceivingInterfaceRecorded(t *testing.T) {
	store, err := playersbolt.Open(filepath.Join(t.TempDir(), "players.db"))
	require.NoError(t, err)
	h := newHarness(t, testConfig(), store)

	msg := h.datagram(t, "192.168.7.20:42069", proto.NewEnvelope(proto.MsgAlive, "bob", "Bob", nil))
	msg.Dst = netip.MustParseAddr("192.168.7.255")
	h.app.handleMessage(msg)

	p := h.app.Tracker().GetPlayerIfExists(msg.From)
	require.NotNil(t, p)
	assert.Equal(t, "192.168.7.255", p.Via())

	got, ok, err := store.Get("192.168.7.20:42069")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "192.168.7.255", got.Via)

	require.NoError(t, h.app.HandleCommand("/players"))
	assert.Contains(t, h.out.String(), "192.168.7.255")

	// a later datagram without control data keeps what we knew
	h.app.handleMessage(h.datagram(t, "192.168.7.20:42069", proto.NewEnvelope(proto.MsgAlive, "bob", "Bob", nil)))
	assert.Equal(t, "192.168.7.255", p.Via())
}

func TestSecondInstanceRunsWithoutHistory(t *testing.T) {
	cfg := testConfig()
	cfg.NoHistory = false
	cfg.DataDir = t.TempDir()

	newApp := func() (*App, *lockedBuffer) {
		out := &lockedBuffer{}
		app, err := New(cfg, Deps{
			Transport: newFakeTransport(),
			Logger:    zaptest.NewLogger(t).Sugar(),
			Printer:   NewStdPrinter(out),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = app.Stop() })
		return app, out
	}

	first, firstOut := newApp()
	second, secondOut := newApp()

	require.NoError(t, first.HandleCommand("/history"))
	assert.Contains(t, firstOut.String(), "nobody seen yet")
	require.NoError(t, second.HandleCommand("/history"))
	assert.Contains(t, secondOut.String(), "history disabled")
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	require.NoError(t, h.app.Start(context.Background()))

	require.NoError(t, h.app.Stop())
	require.NoError(t, h.app.Stop())

	sent := h.transport.Sent()
	assert.Equal(t, proto.MsgQuit, decodeSent(t, sent[len(sent)-1]).Type)
	assert.Equal(t, 1, h.transport.closes)
}

func TestStopWithoutStartSendsNothing(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	require.NoError(t, h.app.Stop())
	assert.Empty(t, h.transport.Sent())
}

func TestRunPumpsAndStopsOnCancel(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	require.NoError(t, h.app.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.app.Run(ctx) }()

	h.transport.in <- h.datagram(t, "10.0.0.2:1", proto.NewEnvelope(proto.MsgAlive, "bob", "Bob", nil))
	require.Eventually(t, func() bool {
		return h.app.Tracker().Count() == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAnnounceLoopUsesClock(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.app.announceLoop(ctx) }()

	// the ticker is created inside the goroutine; keep advancing until it fires
	require.Eventually(t, func() bool {
		h.clock.Add(cfg.AnnounceInterval)
		return len(h.transport.Sent()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, proto.MsgAlive, decodeSent(t, h.transport.Sent()[0]).Type)
	cancel()
	require.NoError(t, <-done)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Name = " "
	_, err := New(cfg, Deps{Transport: newFakeTransport()})
	assert.Error(t, err)
}
