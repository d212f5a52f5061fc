package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exports lobby counters on its own registry so several lobbies
// (or tests) in one process do not collide on the default one.
type Prometheus struct {
	reg *prometheus.Registry

	sent       *prometheus.CounterVec
	received   prometheus.Counter
	duplicates prometheus.Counter
	dropped    *prometheus.CounterVec
	interfaces prometheus.Gauge
	players    prometheus.Gauge
	trackedIDs prometheus.Gauge
}

// NewPrometheus registers all collectors under the given namespace.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "lan_lobby"
	}
	p := &Prometheus{
		reg: prometheus.NewRegistry(),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_sent_total",
			Help:      "Broadcast datagrams sent, per interface and outcome.",
		}, []string{"interface", "result"}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Datagrams surfaced by the listener.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_total",
			Help:      "Messages discarded because their id was already seen.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams dropped before reaching the lobby, by reason.",
		}, []string{"reason"}),
		interfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_interfaces",
			Help:      "Broadcast interfaces found by the last discovery pass.",
		}),
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players",
			Help:      "Players currently visible on the LAN.",
		}),
		trackedIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_message_ids",
			Help:      "Message ids held by the deduplicator.",
		}),
	}
	p.reg.MustRegister(p.sent, p.received, p.duplicates, p.dropped, p.interfaces, p.players, p.trackedIDs)
	return p
}

func (p *Prometheus) IncSent(iface string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	p.sent.WithLabelValues(iface, result).Inc()
}

func (p *Prometheus) IncReceived()             { p.received.Inc() }
func (p *Prometheus) IncDuplicate()            { p.duplicates.Inc() }
func (p *Prometheus) IncDropped(reason string) { p.dropped.WithLabelValues(reason).Inc() }
func (p *Prometheus) SetInterfaces(n int)      { p.interfaces.Set(float64(n)) }
func (p *Prometheus) SetPlayers(n int)         { p.players.Set(float64(n)) }
func (p *Prometheus) SetTrackedIDs(n int)      { p.trackedIDs.Set(float64(n)) }

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.reg }

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

var (
	_ Metrics = NoopMetrics{}
	_ Metrics = (*AtomicMetrics)(nil)
	_ Metrics = (*Prometheus)(nil)
)
