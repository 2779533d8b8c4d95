// Package sink ships structured log records to New Relic.
//
// Records submitted to a Sink are buffered and, once per batch, classified into metrics,
// errors and custom events, projected into Log API items, and delivered in a single request.
// A record that cannot be processed is dropped on its own; a batch that cannot be delivered
// is dropped as a whole. Nothing is retried.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/newrelic/nrlogsink/batch"
	"github.com/newrelic/nrlogsink/classify"
	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/config"
	"github.com/newrelic/nrlogsink/event"
	"github.com/newrelic/nrlogsink/logger"
	"github.com/newrelic/nrlogsink/metrics"
	"github.com/newrelic/nrlogsink/transport"
)

var log = logger.NewLogrusLogger(logger.WithDebugLevel())

// Sink is safe for concurrent use.
type Sink struct {
	minLevel   event.Level
	classifier *classify.Classifier
	deliverer  transport.Deliverer
	scheduler  *batch.Scheduler[event.Record]
	pipeline   *metrics.Pipeline
	log        logrus.FieldLogger
}

// Option configures a Sink.
type Option func(*options)

type options struct {
	metricsSink classify.MetricsSink
	deliverer   transport.Deliverer
	log         logrus.FieldLogger
	registerer  prometheus.Registerer
}

// WithMetricsSink sets the destination of the telemetry derived from records. By default
// it is a Prometheus backed metrics.Sink.
func WithMetricsSink(ms classify.MetricsSink) Option {
	return func(o *options) { o.metricsSink = ms }
}

// WithDeliverer replaces the delivery backend selected by the configuration.
func WithDeliverer(d transport.Deliverer) Option {
	return func(o *options) { o.deliverer = d }
}

// WithLogger sets the diagnostic logger of the sink and all of its parts.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithRegisterer registers the sink's Prometheus collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New validates cfg and starts a Sink.
func New(cfg config.Config, opts ...Option) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{log: log}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}

	pipeline, err := metrics.NewPipeline(o.registerer)
	if err != nil {
		return nil, err
	}
	if o.metricsSink == nil {
		ms, err := metrics.NewSink(o.registerer)
		if err != nil {
			return nil, err
		}
		o.metricsSink = ms
	}
	if o.deliverer == nil {
		d, err := NewDeliverer(cfg, o.log)
		if err != nil {
			return nil, err
		}
		o.deliverer = d
	}

	s := &Sink{
		minLevel:  cfg.Level(),
		deliverer: o.deliverer,
		pipeline:  pipeline,
		log:       o.log,
		classifier: classify.New(o.metricsSink,
			classify.WithSanitizer(cfg.Sanitizer()),
			classify.WithCustomEventName(cfg.CustomEventName),
			classify.WithLogger(o.log),
		),
	}
	s.scheduler = batch.New(s.process,
		batch.WithBatchSizeLimit(cfg.BatchSizeLimit),
		batch.WithPeriod(cfg.Period.Duration),
		batch.WithShutdownGrace(cfg.ShutdownGrace.Duration),
		batch.WithHeartbeat(common.RequiredLevelCheckInterval),
		batch.WithObserver(pipeline),
		batch.WithLogger(o.log),
	)

	o.log.WithFields(logrus.Fields{
		"application":    cfg.ApplicationName,
		"endpoint":       cfg.EndpointURL,
		"delivery":       cfg.Delivery,
		"batchSizeLimit": cfg.BatchSizeLimit,
		"period":         cfg.Period.Duration,
		"minimumLevel":   s.minLevel,
	}).Debug("log sink started")
	return s, nil
}

// NewDeliverer returns the delivery backend named by cfg.Delivery.
func NewDeliverer(cfg config.Config, l logrus.FieldLogger) (transport.Deliverer, error) {
	if strings.EqualFold(cfg.Delivery, config.DeliveryClient) {
		nrClient, err := transport.NewNRClient(cfg.Region, cfg.LicenseKey, cfg.SendTimeout.Duration)
		if err != nil {
			return nil, fmt.Errorf("create New Relic client: %w", err)
		}
		d, err := transport.NewClientDeliverer(nrClient, cfg.ApplicationName,
			transport.WithClientTimeout(cfg.SendTimeout.Duration))
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	c, err := transport.New(cfg.EndpointURL, cfg.ApplicationName,
		transport.WithLicenseKey(cfg.LicenseKey),
		transport.WithInsertKey(cfg.InsertKey),
		transport.WithTimeout(cfg.SendTimeout.Duration),
		transport.WithLogger(l),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Enabled reports whether records of level l are accepted.
func (s *Sink) Enabled(l event.Level) bool {
	return l >= s.minLevel
}

// Submit buffers rec for the next batch. It never blocks on delivery and never fails.
// Records below the minimum level, and records submitted once Close started, are dropped.
func (s *Sink) Submit(rec event.Record) {
	if !s.Enabled(rec.Level) {
		s.pipeline.Filtered()
		return
	}
	if s.scheduler.Add(rec) {
		s.pipeline.Submitted()
	}
}

// Flush processes and delivers everything buffered, and waits for it or for ctx.
func (s *Sink) Flush(ctx context.Context) error {
	return s.scheduler.Flush(ctx)
}

// Close delivers what is still buffered, waiting at most for the configured shutdown grace
// period or until ctx is done.
func (s *Sink) Close(ctx context.Context) error {
	return s.scheduler.Close(ctx)
}

// process handles one batch snapshot. An empty snapshot is the level check heartbeat and
// sends nothing.
func (s *Sink) process(ctx context.Context, records []event.Record) {
	if len(records) == 0 {
		s.log.Debug("level check heartbeat")
		return
	}

	items := make([]common.LogItem, 0, len(records))
	for i := range records {
		item, err := s.processRecord(records[i])
		if err != nil {
			s.pipeline.RecordFailed()
			s.log.WithFields(logrus.Fields{
				"timestamp": records[i].Timestamp.Format(time.RFC3339Nano),
				"template":  records[i].MessageTemplate,
				"error":     err,
			}).Error("record dropped, it could not be processed")
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return
	}

	outcome, err := s.deliverer.Deliver(ctx, items)
	s.pipeline.BatchDone(outcome.String(), len(items), outcome == transport.Accepted)
	if outcome != transport.Accepted {
		s.log.WithFields(logrus.Fields{
			"outcome": outcome,
			"items":   len(items),
			"error":   err,
		}).Error("batch dropped, delivery failed")
	}
}

func (s *Sink) processRecord(rec event.Record) (item common.LogItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := s.classifier.Classify(rec); err != nil {
		return item, err
	}
	return s.classifier.Project(rec)
}
