package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/newrelic/nrlogsink/batch"
)

// Pipeline counts what happens to records between submission and delivery.
type Pipeline struct {
	submitted prometheus.Counter
	filtered  prometheus.Counter
	rejected  prometheus.Counter
	failed    prometheus.Counter
	flushes   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	batches   *prometheus.CounterVec
	delivered prometheus.Counter
}

var _ batch.Observer = (*Pipeline)(nil)

// NewPipeline creates the collectors and registers them with reg, unless reg is nil.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_submitted_total",
			Help:      "Records accepted for shipping.",
		}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_filtered_total",
			Help:      "Records below the minimum level.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_rejected_total",
			Help:      "Records submitted after shutdown started.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_failed_total",
			Help:      "Records dropped because processing them failed.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "flushes_total",
			Help:      "Flushes by trigger.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent processing and delivering one batch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"reason"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_total",
			Help:      "Delivered batches by outcome.",
		}, []string{"outcome"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_delivered_total",
			Help:      "Records in batches accepted by the Log API.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{p.submitted, p.filtered, p.rejected, p.failed, p.flushes, p.duration, p.batches, p.delivered} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register pipeline collectors: %w", err)
			}
		}
	}
	return p, nil
}

func (p *Pipeline) OnFlush(reason string, _ int, took time.Duration) {
	p.flushes.WithLabelValues(reason).Inc()
	p.duration.WithLabelValues(reason).Observe(took.Seconds())
}

func (p *Pipeline) OnReject() { p.rejected.Inc() }

// Submitted counts a record entering the buffer.
func (p *Pipeline) Submitted() { p.submitted.Inc() }

// Filtered counts a record below the minimum level.
func (p *Pipeline) Filtered() { p.filtered.Inc() }

// RecordFailed counts a record dropped during processing.
func (p *Pipeline) RecordFailed() { p.failed.Inc() }

// BatchDone counts a delivered batch under its outcome.
func (p *Pipeline) BatchDone(outcome string, items int, accepted bool) {
	p.batches.WithLabelValues(outcome).Inc()
	if accepted {
		p.delivered.Add(float64(items))
	}
}
