// ABOUTME: Prometheus metrics for the dev speech server
// ABOUTME: Explicit registry so tests can build servers freely
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the dev server collectors. The client library carries no
// metrics; sessions expose counters through their stats snapshot instead.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsActive    prometheus.Gauge
	SessionsTotal     prometheus.Counter
	HandshakeFailures prometheus.Counter

	UplinkFrames prometheus.Counter
	UplinkBytes  prometheus.Counter

	DownlinkChunks prometheus.Counter
	DownlinkBytes  prometheus.Counter

	InterruptsInjected prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		SessionsActive: auto.NewGauge(prometheus.GaugeOpts{
			Name: "vocalis_sessions_active",
			Help: "Current number of connected sessions",
		}),
		SessionsTotal: auto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_sessions_total",
			Help: "Total number of sessions accepted",
		}),
		HandshakeFailures: auto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_handshake_failures_total",
			Help: "Total number of sessions rejected during the handshake",
		}),

		UplinkFrames: auto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_uplink_frames_total",
			Help: "Total number of microphone frames received",
		}),
		UplinkBytes: auto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_uplink_bytes_total",
			Help: "Total microphone payload bytes received",
		}),

		DownlinkChunks: auto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_downlink_chunks_total",
			Help: "Total number of synthesized chunks sent",
		}),
		DownlinkBytes: auto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_downlink_bytes_total",
			Help: "Total synthesized payload bytes sent",
		}),

		InterruptsInjected: auto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_interrupts_injected_total",
			Help: "Total number of speech/interrupt messages injected",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
