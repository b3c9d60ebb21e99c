// Package metrics exposes installation counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gates"

// Event kinds counted by Events.
const (
	KindPress   = "press"
	KindRelease = "release"
	KindHit     = "hit"
	KindMiss    = "miss"
	KindIgnored = "ignored"
)

// Metrics holds the installation's collectors and their registry.
type Metrics struct {
	Registry *prometheus.Registry

	Events      *prometheus.CounterVec
	Advances    prometheus.Counter
	Failures    *prometheus.CounterVec
	Reloads     *prometheus.CounterVec
	ArmedGate   prometheus.Gauge
	Subscribers prometheus.Gauge
}

// New creates the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_events_total",
			Help:      "Sensor events by outcome.",
		}, []string{"kind"}),
		Advances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advances_total",
			Help:      "Times the ready window moved forward.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Lighting and audio calls that failed.",
		}, []string{"collaborator"}),
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_reloads_total",
			Help:      "Layout reload attempts by result.",
		}, []string{"result"}),
		ArmedGate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "armed_gate",
			Help:      "Index of the gate at the head of the ready window, -1 when stopped.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status_subscribers",
			Help:      "Connected websocket clients.",
		}),
	}
	m.ArmedGate.Set(-1)

	m.Registry.MustRegister(
		m.Events,
		m.Advances,
		m.Failures,
		m.Reloads,
		m.ArmedGate,
		m.Subscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
