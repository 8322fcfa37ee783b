package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the webhook -> LLM -> reply flow.
type RelayMetrics struct {
	inboundTotal      *prometheus.CounterVec
	generationTotal   *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
	deliveryTotal     *prometheus.CounterVec
	webhookLatency    *prometheus.HistogramVec
	activeSessions    prometheus.Gauge
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "relay",
			Name:      "inbound_messages_total",
			Help:      "Inbound WhatsApp messages by type and processing outcome",
		}, []string{"type", "outcome"}),
		generationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "relay",
			Name:      "generation_total",
			Help:      "Reply generation attempts by provider and result",
		}, []string{"provider", "status", "category"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "relay",
			Name:      "generation_latency_seconds",
			Help:      "Latency of reply generation calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"provider"}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "relay",
			Name:      "delivery_total",
			Help:      "Outbound WhatsApp sends by result",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "relay",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "companion",
			Subsystem: "relay",
			Name:      "active_sessions",
			Help:      "Conversation sessions currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal,
		m.generationTotal,
		m.generationLatency,
		m.deliveryTotal,
		m.webhookLatency,
		m.activeSessions,
	)
	return m
}

func (m *RelayMetrics) ObserveInbound(messageType, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(messageType, outcome).Inc()
}

// ObserveGeneration records one provider call. category is empty on success.
func (m *RelayMetrics) ObserveGeneration(provider, category string, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if category != "" {
		status = "error"
	}
	m.generationTotal.WithLabelValues(provider, status, category).Inc()
	m.generationLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *RelayMetrics) ObserveDelivery(ok bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.deliveryTotal.WithLabelValues(status).Inc()
}

func (m *RelayMetrics) ObserveWebhookLatency(statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(statusClass(statusCode)).Observe(seconds)
}

func (m *RelayMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
