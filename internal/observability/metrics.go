package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	WSWriteErrors     *prometheus.CounterVec
	OutboundMessages  *prometheus.CounterVec
	TokenFetches      *prometheus.CounterVec
	TokenFetchLatency prometheus.Histogram
	LeadForms         *prometheus.CounterVec
	RPCInvocations    *prometheus.CounterVec
	DroppedEvents     *prometheus.CounterVec

	stages *callStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active visitor sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by operation.",
		}, []string{"op"}),
		OutboundMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Shell outbound queue results by message type.",
		}, []string{"type", "result"}),
		TokenFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_fetches_total",
			Help:      "Connection detail fetches by outcome.",
		}, []string{"outcome"}),
		TokenFetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_fetch_latency_ms",
			Help:      "Latency of connection detail fetches in milliseconds.",
			Buckets:   []float64{25, 50, 100, 200, 400, 800, 1600, 3200},
		}),
		LeadForms: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_forms_total",
			Help:      "Lead capture forms by outcome.",
		}, []string{"outcome"}),
		RPCInvocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_invocations_total",
			Help:      "Remote procedure calls by method, direction and result.",
		}, []string{"method", "direction", "result"}),
		DroppedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordinator_dropped_events_total",
			Help:      "Coordinator events dropped because the session loop fell behind.",
		}, []string{"event"}),
		stages: newCallStageWindow(256),
	}
}

func (m *Metrics) ObserveTokenFetch(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.TokenFetches.WithLabelValues(outcome).Inc()
	m.TokenFetchLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveOutboundMessage(msgType, result string) {
	m.OutboundMessages.WithLabelValues(msgType, result).Inc()
}

// ObserveCallStage feeds the rolling latency window behind /v1/perf/latency.
func (m *Metrics) ObserveCallStage(stage string, d time.Duration, err error) {
	m.stages.Observe(stage, d, err != nil)
}

func (m *Metrics) SnapshotCallStages() CallStageSnapshot {
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
