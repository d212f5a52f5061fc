// Package discovery owns the LAN broadcast socket: it finds the IPv4
// interfaces worth broadcasting on, sends text datagrams to each of them and
// surfaces everything received on the lobby port.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/net/ipv4"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"lan-lobby/internal/metrics"
	"lan-lobby/internal/telemetry"
)

const (
	DefaultPort            = 42069
	DefaultRefreshInterval = 5 * time.Second
	DefaultShutdownTimeout = 1 * time.Second
	DefaultReadBufferSize  = 4096
	DefaultIncomingBuffer  = 128
)

var (
	ErrClosed          = errors.New("broadcast manager closed")
	ErrShutdownTimeout = errors.New("background loop did not stop in time")
)

// Config controls the broadcast manager.
type Config struct {
	// Port is both the bind port and the destination port. Zero binds an
	// ephemeral port and broadcasts to it, which is only useful in tests.
	Port int
	// Encoding converts between text and datagram bytes. Defaults to UTF-8.
	Encoding        encoding.Encoding
	RefreshInterval time.Duration
	ShutdownTimeout time.Duration
	ReadBufferSize  int
	IncomingBuffer  int
	// ReuseAddr lets several processes share the port. Off by default so a
	// second instance fails to bind instead of silently splitting traffic.
	ReuseAddr bool

	Lister  InterfaceLister
	Clock   clock.Clock
	Logger  telemetry.Logger
	Metrics metrics.Metrics
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		Encoding:        unicode.UTF8,
		RefreshInterval: DefaultRefreshInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
		ReadBufferSize:  DefaultReadBufferSize,
		IncomingBuffer:  DefaultIncomingBuffer,
	}
}

// Message is one received datagram.
type Message struct {
	Payload string
	From    netip.AddrPort
	// IfIndex and Dst are filled from IPv4 control messages where the
	// platform supports them.
	IfIndex int
	Dst     netip.Addr
}

// Interface names where the datagram came in: the interface name when the
// platform reported an index, otherwise the address it was sent to. Empty
// when neither is known.
func (m Message) Interface() string {
	if m.IfIndex > 0 {
		if it, err := net.InterfaceByIndex(m.IfIndex); err == nil {
			return it.Name
		}
	}
	if m.Dst.IsValid() {
		return m.Dst.String()
	}
	return ""
}

// packetReader is the receive side of an ipv4.PacketConn.
type packetReader interface {
	ReadFrom(b []byte) (n int, cm *ipv4.ControlMessage, src net.Addr, err error)
}

// generation is one socket plus the two loops serving it. Every Initialize
// creates a new one; a stale generation's loops only ever touch their own
// state.
type generation struct {
	conn *net.UDPConn
	port int
	// writeTo sends one datagram; conn.WriteToUDPAddrPort outside tests.
	writeTo func(b []byte, addr netip.AddrPort) (int, error)

	ifaces atomic.Pointer[map[string]BroadcastInterface]

	stopOnce      sync.Once
	stop          chan struct{}
	stopped       atomic.Bool
	listenerDone  chan struct{}
	refresherDone chan struct{}
}

func (g *generation) halt() {
	g.stopOnce.Do(func() {
		g.stopped.Store(true)
		close(g.stop)
	})
}

func (g *generation) interfaces() map[string]BroadcastInterface {
	if p := g.ifaces.Load(); p != nil {
		return *p
	}
	return nil
}

// BroadcastManager sends and receives lobby datagrams on every broadcast
// capable IPv4 interface.
type BroadcastManager struct {
	cfg     Config
	log     telemetry.Logger
	metrics metrics.Metrics

	// mu serialises Initialize, Shutdown and SendMessage.
	mu  sync.Mutex
	cur atomic.Pointer[generation]

	incoming chan Message
	closed   atomic.Bool
}

func NewBroadcastManager(cfg Config) *BroadcastManager {
	def := DefaultConfig()
	if cfg.Encoding == nil {
		cfg.Encoding = def.Encoding
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.IncomingBuffer <= 0 {
		cfg.IncomingBuffer = def.IncomingBuffer
	}
	if cfg.Lister == nil {
		cfg.Lister = SystemInterfaces
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &BroadcastManager{
		cfg:      cfg,
		log:      telemetry.Named(cfg.Logger, "broadcast"),
		metrics:  metrics.OrNoop(cfg.Metrics),
		incoming: make(chan Message, cfg.IncomingBuffer),
	}
}

// Incoming returns received datagrams. The channel is never closed; select on
// it together with your own cancellation.
func (m *BroadcastManager) Incoming() <-chan Message {
	return m.incoming
}

// Initialize binds the lobby socket, discovers interfaces and starts the
// listener and refresher. Calling it again restarts everything on a fresh
// socket.
func (m *BroadcastManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}

	if err := m.teardownLocked(); err != nil {
		m.log.Warnw("previous socket teardown", "err", err)
	}

	lc := net.ListenConfig{Control: socketControl(m.cfg.ReuseAddr)}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(m.cfg.Port)))
	if err != nil {
		return fmt.Errorf("lan socket bind: %w", err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return fmt.Errorf("lan socket bind: unexpected conn type %T", pc)
	}

	g := &generation{
		conn:          conn,
		port:          conn.LocalAddr().(*net.UDPAddr).Port,
		writeTo:       conn.WriteToUDPAddrPort,
		stop:          make(chan struct{}),
		listenerDone:  make(chan struct{}),
		refresherDone: make(chan struct{}),
	}
	m.cur.Store(g)
	m.refreshInterfaces(g)

	ticker := m.cfg.Clock.Ticker(m.cfg.RefreshInterval)
	go m.listen(g)
	go m.refresh(g, ticker)

	m.log.Infow("lan socket ready",
		"addr", conn.LocalAddr().String(),
		"interfaces", len(g.interfaces()),
	)
	return nil
}

// SendMessage broadcasts text on every known interface. It reports whether at
// least one interface accepted the datagram.
func (m *BroadcastManager) SendMessage(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.cur.Load()
	if g == nil {
		m.log.Warnw("send on uninitialised socket")
		return false
	}

	set := g.interfaces()
	if len(set) == 0 {
		m.log.Debugw("no broadcast interfaces, nothing sent")
		return false
	}

	data, err := m.cfg.Encoding.NewEncoder().Bytes([]byte(text))
	if err != nil {
		m.log.Warnw("encode outgoing message", "err", err)
		return false
	}

	sent := 0
	for _, bi := range set {
		_, err := g.writeTo(data, bi.Target())
		m.metrics.IncSent(bi.Name, err == nil)
		if err != nil {
			m.log.Debugw("broadcast send failed", "iface", bi.Name, "target", bi.Target(), "err", err)
			continue
		}
		sent++
	}
	return sent > 0
}

func (m *BroadcastManager) listen(g *generation) {
	pc := ipv4.NewPacketConn(g.conn)
	if err := pc.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true); err != nil {
		m.log.Debugw("ipv4 control messages unavailable", "err", err)
	}
	m.readLoop(g, pc)
}

// readLoop runs until a read fails. It never restarts itself; the next
// Initialize starts a fresh listener.
func (m *BroadcastManager) readLoop(g *generation, r packetReader) {
	defer close(g.listenerDone)

	buf := make([]byte, m.cfg.ReadBufferSize)
	for {
		n, cm, src, err := r.ReadFrom(buf)
		if err != nil {
			if g.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			m.log.Errorw("lan socket read, listener stopped", "err", err)
			return
		}
		if n == 0 {
			continue
		}

		payload, err := m.cfg.Encoding.NewDecoder().Bytes(buf[:n])
		if err != nil {
			m.log.Warnw("decode incoming datagram", "from", src, "err", err)
			m.metrics.IncDropped(metrics.DropDecode)
			continue
		}

		msg := Message{Payload: string(payload), From: addrPortOf(src)}
		if cm != nil {
			msg.IfIndex = cm.IfIndex
			msg.Dst = addrOf(cm.Dst)
		}
		m.emit(msg)
	}
}

func (m *BroadcastManager) emit(msg Message) {
	select {
	case m.incoming <- msg:
		m.metrics.IncReceived()
	default:
		m.metrics.IncDropped(metrics.DropQueueFull)
		m.log.Debugw("incoming queue full, datagram dropped", "from", msg.From)
	}
}

func (m *BroadcastManager) refresh(g *generation, ticker *clock.Ticker) {
	defer close(g.refresherDone)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
		}
		if g.stopped.Load() {
			return
		}
		m.refreshInterfaces(g)
	}
}

// refreshInterfaces rediscovers interfaces and swaps g's set in one step.
// The refresher calls it without holding mu. Only the live generation
// reports the interface gauge.
func (m *BroadcastManager) refreshInterfaces(g *generation) {
	set := DiscoverBroadcastInterfaces(m.cfg.Lister, g.port, m.log)
	if g.stopped.Load() {
		return
	}
	g.ifaces.Store(&set)
	if m.cur.Load() == g {
		m.metrics.SetInterfaces(len(set))
	}
}

// Shutdown stops both loops and closes the socket. It can be called any
// number of times, and Initialize may be called again afterwards.
func (m *BroadcastManager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teardownLocked()
}

func (m *BroadcastManager) teardownLocked() error {
	g := m.cur.Swap(nil)
	if g == nil {
		return nil
	}

	g.halt()
	var errs error
	if err := g.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = multierr.Append(errs, fmt.Errorf("close lan socket: %w", err))
	}
	errs = multierr.Append(errs, m.join(g.listenerDone, "listener"))
	errs = multierr.Append(errs, m.join(g.refresherDone, "refresher"))

	m.metrics.SetInterfaces(0)
	return errs
}

func (m *BroadcastManager) join(done <-chan struct{}, loop string) error {
	t := time.NewTimer(m.cfg.ShutdownTimeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		m.log.Errorw("loop did not stop in time", "loop", loop, "timeout", m.cfg.ShutdownTimeout)
		return fmt.Errorf("%s: %w", loop, ErrShutdownTimeout)
	}
}

// Close shuts down for good. Only the first call does any work; Initialize
// returns ErrClosed afterwards.
func (m *BroadcastManager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.Shutdown()
}

func (m *BroadcastManager) IsInitialized() bool {
	return m.cur.Load() != nil
}

func (m *BroadcastManager) BroadcastInterfaceCount() int {
	g := m.cur.Load()
	if g == nil {
		return 0
	}
	return len(g.interfaces())
}

// Interfaces returns the current interface set ordered by name, then local
// address.
func (m *BroadcastManager) Interfaces() []BroadcastInterface {
	g := m.cur.Load()
	if g == nil {
		return nil
	}
	set := g.interfaces()
	out := make([]BroadcastInterface, 0, len(set))
	for _, bi := range set {
		out = append(out, bi)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Local.Less(out[j].Local)
	})
	return out
}

// LocalAddr is the bound socket address, or the zero value when not
// initialised.
func (m *BroadcastManager) LocalAddr() netip.AddrPort {
	g := m.cur.Load()
	if g == nil {
		return netip.AddrPort{}
	}
	return addrPortOf(g.conn.LocalAddr())
}
