package metrics

// Metrics is intentionally tiny. Implementations must be thread-safe.
type Metrics interface {
	IncSent(iface string, ok bool)
	IncReceived()
	IncDuplicate()
	IncDropped(reason string)
	SetInterfaces(n int)
	SetPlayers(n int)
	SetTrackedIDs(n int)
}

// Drop reasons reported through IncDropped.
const (
	DropQueueFull = "queue_full"
	DropDecode    = "decode"
	DropMalformed = "malformed"
	DropSelf      = "self"
)

// NoopMetrics is the default.
type NoopMetrics struct{}

func (NoopMetrics) IncSent(iface string, ok bool) {}
func (NoopMetrics) IncReceived()                  {}
func (NoopMetrics) IncDuplicate()                 {}
func (NoopMetrics) IncDropped(reason string)      {}
func (NoopMetrics) SetInterfaces(n int)           {}
func (NoopMetrics) SetPlayers(n int)              {}
func (NoopMetrics) SetTrackedIDs(n int)           {}

// OrNoop returns m, or NoopMetrics when m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return NoopMetrics{}
	}
	return m
}
