// Package metrics exposes the telemetry derived from log records, and the health of the
// shipping pipeline, as Prometheus collectors.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/newrelic/nrlogsink/classify"
	"github.com/newrelic/nrlogsink/event"
)

// Namespace prefixes every metric name.
const Namespace = "nrlogsink"

// Sink is a classify.MetricsSink backed by Prometheus vectors. Metric names taken from records
// become label values.
type Sink struct {
	transactions *prometheus.CounterVec
	timings      *prometheus.HistogramVec
	counters     *prometheus.CounterVec
	gauges       *prometheus.GaugeVec
	errors       *prometheus.CounterVec
	events       *prometheus.CounterVec

	mu          sync.Mutex
	transaction string
}

var _ classify.MetricsSink = (*Sink)(nil)

// NewSink creates the collectors and registers them with reg, unless reg is nil.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transactions_total",
			Help:      "Transaction names set by records, by category and name.",
		}, []string{"category", "name"}),
		timings: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_milliseconds",
			Help:      "Elapsed time of completed timed operations.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"name"}),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "counter_total",
			Help:      "Named counters incremented by records.",
		}, []string{"name"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "gauge",
			Help:      "Last reading of named gauges reported by records.",
		}, []string{"name"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Errors noticed from records, by exception type.",
		}, []string{"type"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "custom_events_total",
			Help:      "Custom events recorded from records, by event type.",
		}, []string{"event_type"}),
	}

	if reg != nil {
		for _, c := range s.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register metrics sink collectors: %w", err)
			}
		}
	}
	return s, nil
}

func (s *Sink) collectors() []prometheus.Collector {
	return []prometheus.Collector{s.transactions, s.timings, s.counters, s.gauges, s.errors, s.events}
}

// Transaction returns the last transaction name set, as "category::name".
func (s *Sink) Transaction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transaction
}

func (s *Sink) SetTransactionName(category, name string) error {
	s.mu.Lock()
	s.transaction = category + "::" + name
	s.mu.Unlock()
	s.transactions.WithLabelValues(category, name).Inc()
	return nil
}

func (s *Sink) RecordResponseTimeMetric(name string, millis int64) error {
	if millis < 0 {
		return fmt.Errorf("negative duration %dms for %q", millis, name)
	}
	s.timings.WithLabelValues(name).Observe(float64(millis))
	return nil
}

func (s *Sink) IncrementCounter(name string) error {
	s.counters.WithLabelValues(name).Inc()
	return nil
}

func (s *Sink) RecordMetric(name string, value float64) error {
	s.gauges.WithLabelValues(name).Set(value)
	return nil
}

// NoticeError counts the error under the exception type, or "message" when there is no exception.
func (s *Sink) NoticeError(exception *event.Exception, _ string, _ map[string]string) error {
	kind := "message"
	if exception != nil {
		kind = exception.Type
		if kind == "" {
			kind = "unknown"
		}
	}
	s.errors.WithLabelValues(kind).Inc()
	return nil
}

func (s *Sink) RecordCustomEvent(eventType string, _ map[string]any) error {
	s.events.WithLabelValues(eventType).Inc()
	return nil
}
