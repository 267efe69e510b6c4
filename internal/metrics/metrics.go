package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"bosun/pkg/monitoring"
)

// Metrics holds the service-specific Prometheus metrics.
type Metrics struct {
	PromptsSubmitted  *prometheus.CounterVec
	PromptsPromoted   *prometheus.CounterVec
	GatewayFailures   *prometheus.CounterVec
	SchedulerFailures *prometheus.CounterVec
	QueueLength       *prometheus.GaugeVec
	ViewerConnections *prometheus.GaugeVec
}

// New registers and returns the service metrics.
func New(mc *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		PromptsSubmitted:  mc.NewCounter("prompts_submitted_total", "Prompts accepted into a stream queue", []string{"stream_key"}),
		PromptsPromoted:   mc.NewCounter("prompts_promoted_total", "Prompts promoted to current", []string{"stream_key"}),
		GatewayFailures:   mc.NewCounter("gateway_failures_total", "Failed prompt deliveries to the generation gateway", []string{"stream_key"}),
		SchedulerFailures: mc.NewCounter("scheduler_failures_total", "Per-stream scheduler failures", []string{"stream_key", "class"}),
		QueueLength:       mc.NewGauge("queue_length", "Queued prompts per stream", []string{"stream_key"}),
		ViewerConnections: mc.NewGauge("viewer_connections", "Active viewer WebSocket connections", []string{"endpoint"}),
	}
}

// PromptPromoted implements the scheduler metrics callback.
func (m *Metrics) PromptPromoted(streamKey string) {
	m.PromptsPromoted.WithLabelValues(streamKey).Inc()
}

// GatewayFailure implements the scheduler metrics callback.
func (m *Metrics) GatewayFailure(streamKey string) {
	m.GatewayFailures.WithLabelValues(streamKey).Inc()
}

// StreamFailure implements the scheduler metrics callback.
func (m *Metrics) StreamFailure(streamKey string, connection bool) {
	class := "unexpected"
	if connection {
		class = "connection"
	}
	m.SchedulerFailures.WithLabelValues(streamKey, class).Inc()
}

// ObserveQueueLength implements the scheduler metrics callback.
func (m *Metrics) ObserveQueueLength(streamKey string, length int64) {
	m.QueueLength.WithLabelValues(streamKey).Set(float64(length))
}
