package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter mirrors a Bus's event stream into Prometheus counters,
// so the same diagnostic events that back the in-process ring and the
// console's /stats command are also scrapable.
type PrometheusExporter struct {
	eventsTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	unsubscribe func()
}

// NewPrometheusExporter registers its collectors against reg and starts
// mirroring bus events. A nil reg means prometheus.DefaultRegisterer. Call
// Close to stop mirroring (it does not unregister the collectors, matching
// prometheus.Registerer's own lifecycle expectations).
func NewPrometheusExporter(bus *Bus, reg prometheus.Registerer) (*PrometheusExporter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	eventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentrt",
		Subsystem: "diagnostics",
		Name:      "events_total",
		Help:      "Total diagnostic events emitted, labeled by event type.",
	}, []string{"type"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentrt",
		Subsystem: "diagnostics",
		Name:      "errors_total",
		Help:      "Total diagnostic events flagged as errors, labeled by event type.",
	}, []string{"type"})

	if err := reg.Register(eventsTotal); err != nil {
		return nil, err
	}
	if err := reg.Register(errorsTotal); err != nil {
		return nil, err
	}

	e := &PrometheusExporter{eventsTotal: eventsTotal, errorsTotal: errorsTotal}
	e.unsubscribe = bus.Subscribe(func(evt Event) {
		eventsTotal.WithLabelValues(string(evt.Type)).Inc()
		if evt.IsError {
			errorsTotal.WithLabelValues(string(evt.Type)).Inc()
		}
	})
	return e, nil
}

// Close stops mirroring new bus events.
func (e *PrometheusExporter) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}
