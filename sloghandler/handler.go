// Package sloghandler adapts log/slog to a log sink.
package sloghandler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/newrelic/nrlogsink/event"
)

// Submitter receives the converted records. *sink.Sink satisfies it.
type Submitter interface {
	Enabled(event.Level) bool
	Submit(event.Record)
}

// Handler is a slog.Handler that submits every record to a Submitter. The message becomes
// both the message template and the rendered message. The first attribute holding an error
// is also attached as the record's exception.
type Handler struct {
	sink   Submitter
	attrs  []event.Attribute
	prefix string
}

var _ slog.Handler = (*Handler)(nil)

// New returns a Handler feeding s.
func New(s Submitter) *Handler {
	return &Handler{sink: s}
}

// Level maps a slog level onto the closest record level.
func Level(l slog.Level) event.Level {
	switch {
	case l < slog.LevelDebug:
		return event.Verbose
	case l < slog.LevelInfo:
		return event.Debug
	case l < slog.LevelWarn:
		return event.Information
	case l < slog.LevelError:
		return event.Warning
	case l < slog.LevelError+4:
		return event.Error
	default:
		return event.Fatal
	}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return h.sink.Enabled(Level(l))
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	rec := event.Record{
		Timestamp:       r.Time,
		Level:           Level(r.Level),
		MessageTemplate: r.Message,
		Message:         r.Message,
		Attributes:      make([]event.Attribute, 0, len(h.attrs)+r.NumAttrs()),
	}
	rec.Attributes = append(rec.Attributes, h.attrs...)

	r.Attrs(func(a slog.Attr) bool {
		if rec.Exception == nil {
			if err, ok := a.Value.Resolve().Any().(error); ok && err != nil {
				rec.Exception = exception(err)
			}
		}
		rec.Attributes = add(rec.Attributes, h.prefix, a)
		return true
	})

	h.sink.Submit(rec)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = make([]event.Attribute, len(h.attrs), len(h.attrs)+len(attrs))
	copy(h2.attrs, h.attrs)
	for _, a := range attrs {
		h2.attrs = add(h2.attrs, h.prefix, a)
	}
	return &h2
}

// WithGroup qualifies the keys of later attributes with name and a dot.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// add appends a, replacing an earlier attribute of the same key. Empty keys are ignored,
// and groups without a key are inlined.
func add(attrs []event.Attribute, prefix string, a slog.Attr) []event.Attribute {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup && a.Key == "" {
		for _, member := range a.Value.Group() {
			attrs = add(attrs, prefix, member)
		}
		return attrs
	}
	if a.Key == "" {
		return attrs
	}

	key := prefix + a.Key
	v := Value(a.Value)
	for i := range attrs {
		if attrs[i].Key == key {
			attrs[i].Value = v
			return attrs
		}
	}
	return append(attrs, event.Attribute{Key: key, Value: v})
}

// Value converts a slog value. Groups become mappings in attribute order.
func Value(v slog.Value) event.Value {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return event.S(v.String())
	case slog.KindInt64:
		return event.S(v.Int64())
	case slog.KindUint64:
		return event.S(v.Uint64())
	case slog.KindFloat64:
		return event.S(v.Float64())
	case slog.KindBool:
		return event.S(v.Bool())
	case slog.KindDuration:
		return event.S(v.Duration().String())
	case slog.KindTime:
		return event.S(v.Time())
	case slog.KindGroup:
		group := v.Group()
		m := make(event.Mapping, 0, len(group))
		for _, a := range group {
			if a.Key == "" {
				continue
			}
			m = append(m, event.MapEntry{Key: event.S(a.Key), Value: Value(a.Value)})
		}
		return m
	}
	return anyValue(v.Any())
}

func anyValue(x any) event.Value {
	switch x := x.(type) {
	case nil:
		return event.S(nil)
	case error:
		return event.S(x.Error())
	case []byte:
		return event.S(x)
	case []string:
		seq := make(event.Sequence, len(x))
		for i, s := range x {
			seq[i] = event.S(s)
		}
		return seq
	case []any:
		seq := make(event.Sequence, len(x))
		for i, e := range x {
			seq[i] = anyValue(e)
		}
		return seq
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := make(event.Mapping, len(keys))
		for i, k := range keys {
			m[i] = event.MapEntry{Key: event.S(k), Value: anyValue(x[k])}
		}
		return m
	case event.Value:
		return x
	}
	return event.S(x)
}

func exception(err error) *event.Exception {
	typ := fmt.Sprintf("%T", err)
	typ = strings.TrimPrefix(typ, "*")
	return &event.Exception{
		Type:       typ,
		Message:    err.Error(),
		StackTrace: fmt.Sprintf("%+v", err),
	}
}
