package diagnostics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusExporterCountsEventsByType(t *testing.T) {
	bus := NewBus()
	reg := prometheus.NewRegistry()
	exp, err := NewPrometheusExporter(bus, reg)
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	defer exp.Close()

	bus.Emit(EventInput{Type: EventToolCall})
	bus.Emit(EventInput{Type: EventToolCall})
	bus.Emit(EventInput{Type: EventError, IsError: true})

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var events, errs float64
	for _, mf := range metrics {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case "agentrt_diagnostics_events_total":
				events += counterValue(m)
			case "agentrt_diagnostics_errors_total":
				errs += counterValue(m)
			}
		}
	}
	if events != 3 {
		t.Fatalf("expected 3 total events, got %v", events)
	}
	if errs != 1 {
		t.Fatalf("expected 1 error event, got %v", errs)
	}
}

func counterValue(m *dto.Metric) float64 {
	if m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}
