package classify

import (
	"sync"

	"github.com/newrelic/nrlogsink/event"
)

// MetricsSink receives the telemetry derived from records. Implementations must be safe for concurrent use.
type MetricsSink interface {
	SetTransactionName(category, name string) error
	RecordResponseTimeMetric(name string, millis int64) error
	IncrementCounter(name string) error
	RecordMetric(name string, value float64) error
	// NoticeError receives either the attached exception or, when there is none, the sanitized message.
	NoticeError(exception *event.Exception, message string, attributes map[string]string) error
	RecordCustomEvent(eventType string, attributes map[string]any) error
}

// EffectKind identifies a MetricsSink call.
type EffectKind string

const (
	SetTransactionName EffectKind = "SetTransactionName"
	RecordTiming       EffectKind = "RecordResponseTimeMetric"
	IncrementCounter   EffectKind = "IncrementCounter"
	RecordGauge        EffectKind = "RecordMetric"
	NoticeError        EffectKind = "NoticeError"
	RecordCustomEvent  EffectKind = "RecordCustomEvent"
)

// Effect is one recorded MetricsSink call. Only the fields relevant to Kind are set.
type Effect struct {
	Kind       EffectKind
	Category   string
	Name       string
	Millis     int64
	Value      float64
	Exception  *event.Exception
	Message    string
	Properties map[string]string
	Attributes map[string]any
}

// Recorder is a MetricsSink that keeps every call in memory.
type Recorder struct {
	mu      sync.Mutex
	effects []Effect
}

var _ MetricsSink = (*Recorder)(nil)

func (r *Recorder) add(e Effect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, e)
	return nil
}

// Effects returns a copy of the recorded calls in call order.
func (r *Recorder) Effects() []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Effect(nil), r.effects...)
}

// Reset forgets every recorded call.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = nil
}

func (r *Recorder) SetTransactionName(category, name string) error {
	return r.add(Effect{Kind: SetTransactionName, Category: category, Name: name})
}

func (r *Recorder) RecordResponseTimeMetric(name string, millis int64) error {
	return r.add(Effect{Kind: RecordTiming, Name: name, Millis: millis})
}

func (r *Recorder) IncrementCounter(name string) error {
	return r.add(Effect{Kind: IncrementCounter, Name: name})
}

func (r *Recorder) RecordMetric(name string, value float64) error {
	return r.add(Effect{Kind: RecordGauge, Name: name, Value: value})
}

func (r *Recorder) NoticeError(exception *event.Exception, message string, attributes map[string]string) error {
	return r.add(Effect{Kind: NoticeError, Exception: exception, Message: message, Properties: attributes})
}

func (r *Recorder) RecordCustomEvent(eventType string, attributes map[string]any) error {
	return r.add(Effect{Kind: RecordCustomEvent, Name: eventType, Attributes: attributes})
}

// Discard is a MetricsSink that ignores everything.
type Discard struct{}

func (Discard) SetTransactionName(string, string) error                       { return nil }
func (Discard) RecordResponseTimeMetric(string, int64) error                  { return nil }
func (Discard) IncrementCounter(string) error                                 { return nil }
func (Discard) RecordMetric(string, float64) error                            { return nil }
func (Discard) NoticeError(*event.Exception, string, map[string]string) error { return nil }
func (Discard) RecordCustomEvent(string, map[string]any) error                { return nil }
