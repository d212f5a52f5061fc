package lobby

import (
	"bytes"
	"net/netip"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"lan-lobby/internal/dedup"
	"lan-lobby/internal/discovery"
	"lan-lobby/internal/metrics"
	"lan-lobby/internal/proto"
)

// fakeTransport records what the app sends and lets tests inject datagrams.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []string
	inits   int
	closes  int
	initErr error
	in      chan discovery.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan discovery.Message, 16)}
}

func (f *fakeTransport) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeTransport) SendMessage(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return true
}

func (f *fakeTransport) Incoming() <-chan discovery.Message { return f.in }

func (f *fakeTransport) Interfaces() []discovery.BroadcastInterface {
	return []discovery.BroadcastInterface{{
		Name:      "eth0",
		Local:     netip.MustParseAddr("10.0.0.5"),
		Broadcast: netip.MustParseAddr("10.0.0.255"),
		Port:      discovery.DefaultPort,
	}}
}

func (f *fakeTransport) LocalAddr() netip.AddrPort {
	return netip.AddrPortFrom(netip.IPv4Unspecified(), discovery.DefaultPort)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// decodeSent strips the message id off a sent payload and decodes it.
func decodeSent(t *testing.T, s string) proto.Envelope {
	t.Helper()
	require.True(t, dedup.IsValidMessageID(s[:dedup.MessageIDLength]), s)
	env, err := proto.Decode(s[dedup.MessageIDLength:])
	require.NoError(t, err)
	return env
}

type harness struct {
	app       *App
	transport *fakeTransport
	metrics   *metrics.AtomicMetrics
	clock     *clock.Mock
	out       *lockedBuffer
	// peer plays another lobby on the LAN
	peer *dedup.Deduplicator
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "Alice"
	cfg.NoHistory = true
	cfg.Seed = 1
	return cfg
}

func newHarness(t *testing.T, cfg Config, store SightingStore) *harness {
	t.Helper()
	h := &harness{
		transport: newFakeTransport(),
		metrics:   &metrics.AtomicMetrics{},
		clock:     clock.NewMock(),
		out:       &lockedBuffer{},
		peer:      dedup.New(dedup.Config{Seed: 99}),
	}
	app, err := New(cfg, Deps{
		Transport: h.transport,
		Store:     store,
		Metrics:   h.metrics,
		Logger:    zaptest.NewLogger(t).Sugar(),
		Printer:   NewStdPrinter(h.out),
		Clock:     h.clock,
	})
	require.NoError(t, err)
	h.app = app
	t.Cleanup(func() {
		_ = app.Stop()
		_ = h.peer.Close()
	})
	return h
}

// datagram builds what another lobby would broadcast.
func (h *harness) datagram(t *testing.T, from string, env proto.Envelope) discovery.Message {
	t.Helper()
	text, err := proto.Encode(env)
	require.NoError(t, err)
	return discovery.Message{Payload: h.peer.WrapMessage(text), From: netip.MustParseAddrPort(from)}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func rawDatagram(from, payload string) discovery.Message {
	return discovery.Message{Payload: payload, From: netip.MustParseAddrPort(from)}
}
