package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRelayMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)

	m.ObserveInbound("text", "replied")
	m.ObserveInbound("text", "replied")
	m.ObserveInbound("image", "skipped")
	m.ObserveGeneration("gemini", "", 0.4)
	m.ObserveGeneration("gemini", "quota", 0.1)
	m.ObserveDelivery(true)
	m.ObserveDelivery(false)
	m.ObserveWebhookLatency(200, 0.5)
	m.SetActiveSessions(3)

	if got := testutil.ToFloat64(m.inboundTotal.WithLabelValues("text", "replied")); got != 2 {
		t.Fatalf("inbound replied = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.generationTotal.WithLabelValues("gemini", "error", "quota")); got != 1 {
		t.Fatalf("generation errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.generationTotal.WithLabelValues("gemini", "ok", "")); got != 1 {
		t.Fatalf("generation ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.deliveryTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("delivery failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 3 {
		t.Fatalf("active sessions = %v, want 3", got)
	}
}

func TestRelayMetricsDefaultRegistry(t *testing.T) {
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewRelayMetrics(nil)
	m.ObserveDelivery(true)
}

func TestRelayMetricsNilSafe(t *testing.T) {
	var m *RelayMetrics
	m.ObserveInbound("text", "replied")
	m.ObserveGeneration("gemini", "", 0.1)
	m.ObserveDelivery(false)
	m.ObserveWebhookLatency(500, 0.1)
	m.SetActiveSessions(1)
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 401: "4xx", 403: "4xx", 500: "5xx"}
	for code, want := range cases {
		if got := statusClass(code); got != want {
			t.Fatalf("statusClass(%d) = %s, want %s", code, got, want)
		}
	}
}
