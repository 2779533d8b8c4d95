// Package classify derives telemetry from structured log records.
//
// A record is inspected for marker attributes and turned into at most one
// metric, error or custom event, plus an optional transaction name, which are
// handed to a MetricsSink. The same records are projected into Log API items.
package classify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/event"
	"github.com/newrelic/nrlogsink/logger"
	"github.com/newrelic/nrlogsink/sanitize"
	"github.com/newrelic/nrlogsink/simplify"
)

// ErrMissingDescription is returned for a completed timed operation without a description.
var ErrMissingDescription = errors.New("timed operation has no " + common.TimedOperationDescription)

var log = logger.NewLogrusLogger(logger.WithDebugLevel())

// Classifier is safe for concurrent use.
type Classifier struct {
	sink      MetricsSink
	sanitizer *sanitize.Sanitizer
	eventName string
	log       logrus.FieldLogger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithSanitizer sets the sanitizer applied to names, keys and messages.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(c *Classifier) { c.sanitizer = s }
}

// WithCustomEventName sets the event type of custom events.
func WithCustomEventName(name string) Option {
	return func(c *Classifier) {
		if name != "" {
			c.eventName = name
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Classifier) { c.log = l }
}

// New returns a Classifier reporting to sink.
func New(sink MetricsSink, opts ...Option) *Classifier {
	c := &Classifier{
		sink:      sink,
		sanitizer: sanitize.Default,
		eventName: common.DefaultCustomEventName,
		log:       log,
	}
	for _, fn := range opts {
		if fn != nil {
			fn(c)
		}
	}
	if c.sink == nil {
		c.sink = Discard{}
	}
	return c
}

// Classify reports the telemetry carried by rec to the MetricsSink.
//
// A transaction name is set first when present. Then exactly one of the following applies,
// in order: timed operation, counter, gauge, error (level Error or above), custom event.
// Marker values that cannot be parsed are skipped without error.
func (c *Classifier) Classify(rec event.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classify: panic: %v", r)
		}
	}()

	if v, ok := rec.Lookup(common.TransactionName); ok {
		if err := c.transaction(v); err != nil {
			return err
		}
	}

	switch {
	case rec.Has(common.TimedOperationId) || rec.Has(common.TimedOperationElapsedInMs):
		return c.timing(&rec)
	case rec.Has(common.CounterName):
		name, ok := text(rec.Lookup(common.CounterName))
		if !ok {
			return nil
		}
		return wrap(c.sink.IncrementCounter(c.sanitizer.Sanitize(name)))
	case rec.Has(common.GaugeName) && rec.Has(common.GaugeValue):
		return c.gauge(&rec)
	case rec.Level >= event.Error:
		return c.noticeError(&rec)
	default:
		return c.customEvent(&rec)
	}
}

func (c *Classifier) transaction(v event.Value) error {
	if event.IsNull(v) {
		return nil
	}
	raw := strings.Trim(v.String(), `"'`)
	parts := strings.Split(raw, "::")
	if len(parts) < 2 {
		return nil
	}
	return wrap(c.sink.SetTransactionName(c.sanitizer.Sanitize(parts[0]), c.sanitizer.Sanitize(parts[1])))
}

// timing only reports completed operations; the start of an operation has no elapsed time.
func (c *Classifier) timing(rec *event.Record) error {
	elapsed, ok := text(rec.Lookup(common.TimedOperationElapsedInMs))
	if !ok {
		return nil
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(elapsed), 10, 64)
	if err != nil {
		return nil
	}
	desc, ok := text(rec.Lookup(common.TimedOperationDescription))
	if !ok {
		return ErrMissingDescription
	}
	return wrap(c.sink.RecordResponseTimeMetric(c.sanitizer.Sanitize(desc), millis))
}

func (c *Classifier) gauge(rec *event.Record) error {
	name, ok := text(rec.Lookup(common.GaugeName))
	if !ok {
		return nil
	}
	raw, ok := text(rec.Lookup(common.GaugeValue))
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return wrap(c.sink.RecordMetric(c.sanitizer.Sanitize(name), value))
}

func (c *Classifier) noticeError(rec *event.Record) error {
	props := make(map[string]string, len(rec.Attributes))
	for _, a := range rec.Attributes {
		if event.IsNull(a.Value) {
			continue
		}
		key := c.sanitizer.Sanitize(a.Key)
		if _, dup := props[key]; dup {
			c.duplicate(rec, a.Key, key)
			continue
		}
		props[key] = a.Value.String()
	}

	if rec.Exception != nil {
		return wrap(c.sink.NoticeError(rec.Exception, "", props))
	}
	return wrap(c.sink.NoticeError(nil, c.sanitizer.Sanitize(rec.Message), props))
}

func (c *Classifier) customEvent(rec *event.Record) error {
	props := make(map[string]any, len(rec.Attributes)+1)
	props[common.MessageTemplate] = rec.MessageTemplate

	for _, a := range rec.Attributes {
		if event.IsNull(a.Value) {
			continue
		}
		key := c.sanitizer.Sanitize(a.Key)
		if _, dup := props[key]; dup {
			c.duplicate(rec, a.Key, key)
			continue
		}
		props[key] = simplify.Value(a.Value, simplify.WithCollisionReporter(c.collision(rec, a.Key)))
	}
	return wrap(c.sink.RecordCustomEvent(c.eventName, props))
}

func (c *Classifier) duplicate(rec *event.Record, key, sanitized string) {
	c.log.WithFields(logrus.Fields{
		"attribute": key,
		"sanitized": sanitized,
		"template":  rec.MessageTemplate,
	}).Warn("attribute dropped, its sanitized name is already in use")
}

func (c *Classifier) collision(rec *event.Record, attribute string) func(string) {
	return func(key string) {
		c.log.WithFields(logrus.Fields{
			"attribute": attribute,
			"key":       key,
			"template":  rec.MessageTemplate,
		}).Warn("dictionary key is not unique after simplification, sending key/value pairs")
	}
}

// text returns the string form of a marker value. A missing or null value yields false.
func text(v event.Value, found bool) (string, bool) {
	if !found || event.IsNull(v) {
		return "", false
	}
	return v.String(), true
}

func wrap(err error) error {
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	return nil
}
