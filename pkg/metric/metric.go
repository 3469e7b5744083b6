// Package metric holds the Prometheus collectors of the supervisor process.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "supervisor"

// Metrics groups the wire, registry and handler collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	FramesDecoded   *prometheus.CounterVec
	Desyncs         *prometheus.CounterVec
	MalformedFrames *prometheus.CounterVec
	BytesReceived   *prometheus.CounterVec
	OpenConnections *prometheus.GaugeVec
	Requests        *prometheus.CounterVec
	Components      *prometheus.GaugeVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wire",
				Name:      "frames_decoded_total",
				Help:      "Complete frames decoded, per listener",
			},
			[]string{"listener"},
		),
		Desyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wire",
				Name:      "desyncs_total",
				Help:      "Streams or datagrams abandoned on an unknown id or buffer overflow",
			},
			[]string{"listener"},
		),
		MalformedFrames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wire",
				Name:      "malformed_frames_total",
				Help:      "Length-delimited frames dropped because the payload did not decode",
			},
			[]string{"listener"},
		),
		BytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "wire",
				Name:      "bytes_received_total",
				Help:      "Bytes read from sockets",
			},
			[]string{"listener"},
		),
		OpenConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "wire",
				Name:      "open_connections",
				Help:      "Accepted TCP connections currently open",
			},
			[]string{"listener"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "protocol",
				Name:      "requests_total",
				Help:      "Protocol requests handled, by message and outcome",
			},
			[]string{"message", "status"},
		),
		Components: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "components",
				Help:      "Registered components by type",
			},
			[]string{"type"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FramesDecoded, m.Desyncs, m.MalformedFrames, m.BytesReceived,
		m.OpenConnections, m.Requests, m.Components,
	}
}

func (m *Metrics) FrameDecoded(listener string) {
	if m != nil {
		m.FramesDecoded.WithLabelValues(listener).Inc()
	}
}

func (m *Metrics) Desync(listener string) {
	if m != nil {
		m.Desyncs.WithLabelValues(listener).Inc()
	}
}

func (m *Metrics) Malformed(listener string) {
	if m != nil {
		m.MalformedFrames.WithLabelValues(listener).Inc()
	}
}

func (m *Metrics) Received(listener string, n int) {
	if m != nil && n > 0 {
		m.BytesReceived.WithLabelValues(listener).Add(float64(n))
	}
}

func (m *Metrics) ConnOpened(listener string) {
	if m != nil {
		m.OpenConnections.WithLabelValues(listener).Inc()
	}
}

func (m *Metrics) ConnClosed(listener string) {
	if m != nil {
		m.OpenConnections.WithLabelValues(listener).Dec()
	}
}

func (m *Metrics) Request(message, status string) {
	if m != nil {
		m.Requests.WithLabelValues(message, status).Inc()
	}
}

// SetComponents replaces the per-type component gauge.
func (m *Metrics) SetComponents(counts map[string]int) {
	if m == nil {
		return
	}
	m.Components.Reset()
	for typ, n := range counts {
		m.Components.WithLabelValues(typ).Set(float64(n))
	}
}

// Registry owns a private Prometheus registry with the process collectors
// and the supervisor Metrics.
type Registry struct {
	prom    *prometheus.Registry
	Metrics *Metrics
}

// NewRegistry creates and registers everything.
func NewRegistry() *Registry {
	r := &Registry{
		prom:    prometheus.NewRegistry(),
		Metrics: NewMetrics(),
	}
	r.prom.MustRegister(r.Metrics.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.prom
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
