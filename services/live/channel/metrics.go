package channel

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/02loveslollipop/Shizuku-worker-safety/services/live/telemetry"
)

// Drop reasons reported to Metrics.
const (
	DropDecode     = "decode"
	DropIrrelevant = "irrelevant"
)

// Metrics receives connection diagnostics. Implementations must be safe for
// concurrent use.
type Metrics interface {
	EventDecoded(role telemetry.Role)
	EventDropped(role telemetry.Role, reason string)
	Reconnect(role telemetry.Role)
	Connected(role telemetry.Role, up bool)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) EventDecoded(telemetry.Role)         {}
func (NoopMetrics) EventDropped(telemetry.Role, string) {}
func (NoopMetrics) Reconnect(telemetry.Role)            {}
func (NoopMetrics) Connected(telemetry.Role, bool)      {}

// PrometheusMetrics exports channel diagnostics as Prometheus series.
type PrometheusMetrics struct {
	decoded    *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	connected  *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		decoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shizuku",
			Subsystem: "live",
			Name:      "events_decoded_total",
			Help:      "Events decoded from the live feed.",
		}, []string{"role"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shizuku",
			Subsystem: "live",
			Name:      "events_dropped_total",
			Help:      "Events dropped before reaching a view.",
		}, []string{"role", "reason"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shizuku",
			Subsystem: "live",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts after a dropped connection.",
		}, []string{"role"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shizuku",
			Subsystem: "live",
			Name:      "connected",
			Help:      "Open live connections.",
		}, []string{"role"}),
	}

	reg.MustRegister(m.decoded, m.dropped, m.reconnects, m.connected)
	return m
}

func (m *PrometheusMetrics) EventDecoded(role telemetry.Role) {
	m.decoded.WithLabelValues(string(role)).Inc()
}

func (m *PrometheusMetrics) EventDropped(role telemetry.Role, reason string) {
	m.dropped.WithLabelValues(string(role), reason).Inc()
}

func (m *PrometheusMetrics) Reconnect(role telemetry.Role) {
	m.reconnects.WithLabelValues(string(role)).Inc()
}

func (m *PrometheusMetrics) Connected(role telemetry.Role, up bool) {
	if up {
		m.connected.WithLabelValues(string(role)).Inc()
		return
	}
	m.connected.WithLabelValues(string(role)).Dec()
}
