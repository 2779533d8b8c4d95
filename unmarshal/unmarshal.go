// Package unmarshal decodes JSON log records into event records.
//
// A record is a JSON object. The well known members are read from either their plain or
// their compact name:
//
//	timestamp       @t   RFC 3339 string or Unix epoch milliseconds
//	level           @l   level name, Information when absent
//	messageTemplate @mt
//	message         @m   rendered from the template when absent
//	exception       @x   object {type, message, stackTrace} or a stack trace string
//	attributes           object whose members become attributes
//
// Every other member becomes an attribute as well, in document order.
package unmarshal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"github.com/newrelic/nrlogsink/event"
	"github.com/newrelic/nrlogsink/logger"
)

// Defines the payload shapes
const (
	SINGLE_RECORD = "record" // SINGLE_RECORD is a payload holding one JSON object.
	RECORD_BATCH  = "batch"  // RECORD_BATCH is a payload holding a JSON array of objects.
)

// TypeTagMembers name the member holding the type tag of a structured object.
var TypeTagMembers = []string{"$type", "$typeTag"}

var log = logger.NewLogrusLogger(logger.WithDebugLevel())

var parserPool fastjson.ParserPool

// now is replaced in tests.
var now = time.Now

// ErrNotAnObject is returned for records that are not JSON objects.
var ErrNotAnObject = errors.New("record is not a JSON object")

// Event represents a decoded payload.
type Event struct {
	EventType string         // EventType is SINGLE_RECORD or RECORD_BATCH.
	Records   []event.Record // Records in payload order.
}

// Unmarshal reads the whole payload and decodes it into the Event.
func (e *Event) Unmarshal(in io.Reader) error {
	payloadBytes, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading incoming payload: %w", err)
	}
	return e.UnmarshalBytes(payloadBytes)
}

// UnmarshalBytes decodes a payload holding a record or an array of records.
func (e *Event) UnmarshalBytes(payload []byte) error {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(payload)
	if err != nil {
		return fmt.Errorf("decoding incoming payload: %w", err)
	}

	if v.Type() != fastjson.TypeArray {
		rec, err := Record(v)
		if err != nil {
			return err
		}
		e.EventType = SINGLE_RECORD
		e.Records = []event.Record{rec}
		return nil
	}

	arr, _ := v.Array()
	records := make([]event.Record, 0, len(arr))
	for i, item := range arr {
		rec, err := Record(item)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	e.EventType = RECORD_BATCH
	e.Records = records
	return nil
}

// Lines decodes newline delimited records from in and calls fn for each. Blank lines are
// skipped. A line that cannot be decoded is reported to onError, when set, and skipped;
// otherwise decoding stops with its error.
func Lines(in io.Reader, fn func(event.Record), onError func(line int, err error)) error {
	p := parserPool.Get()
	defer parserPool.Put(p)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}

		v, err := p.ParseBytes(text)
		if err == nil {
			var rec event.Record
			if rec, err = Record(v); err == nil {
				fn(rec)
				continue
			}
		}
		if onError == nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		onError(line, err)
	}
	return scanner.Err()
}

// Record converts one parsed JSON object into a record.
func Record(v *fastjson.Value) (event.Record, error) {
	obj, err := v.Object()
	if err != nil {
		return event.Record{}, ErrNotAnObject
	}

	rec := event.Record{Level: event.Information}
	var decodeErr error
	seen := make(map[string]bool)
	addAttribute := func(key string, value *fastjson.Value) {
		if seen[key] {
			log.WithField("attribute", key).Debug("duplicate attribute ignored")
			return
		}
		seen[key] = true
		rec.Attributes = append(rec.Attributes, event.Attribute{Key: key, Value: Value(value)})
	}

	obj.Visit(func(key []byte, member *fastjson.Value) {
		if decodeErr != nil {
			return
		}
		switch k := string(key); k {
		case "timestamp", "@t":
			rec.Timestamp, decodeErr = timestamp(member)
		case "level", "@l":
			rec.Level, decodeErr = level(member)
		case "messageTemplate", "@mt":
			rec.MessageTemplate = text(member)
		case "message", "@m":
			rec.Message = text(member)
		case "exception", "@x":
			rec.Exception = exception(member)
		case "attributes":
			attrs, err := member.Object()
			if err != nil {
				addAttribute(k, member)
				return
			}
			attrs.Visit(func(key []byte, value *fastjson.Value) {
				addAttribute(string(key), value)
			})
		default:
			addAttribute(k, member)
		}
	})
	if decodeErr != nil {
		return event.Record{}, decodeErr
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = now()
	}
	if rec.Message == "" && rec.MessageTemplate != "" {
		rec.Message = event.Render(rec.MessageTemplate, rec.Attributes)
	}
	return rec, nil
}

func timestamp(v *fastjson.Value) (time.Time, error) {
	switch v.Type() {
	case fastjson.TypeNumber:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %s: %w", v, err)
		}
		return time.UnixMilli(ms), nil
	case fastjson.TypeString:
		s := string(v.GetStringBytes())
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return t, nil
	case fastjson.TypeNull:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %s", v)
}

func level(v *fastjson.Value) (event.Level, error) {
	if v.Type() == fastjson.TypeNull {
		return event.Information, nil
	}
	return event.ParseLevel(text(v))
}

func exception(v *fastjson.Value) *event.Exception {
	switch v.Type() {
	case fastjson.TypeNull:
		return nil
	case fastjson.TypeObject:
		exc := &event.Exception{
			Type:       string(v.GetStringBytes("type")),
			Message:    string(v.GetStringBytes("message")),
			StackTrace: string(v.GetStringBytes("stackTrace")),
		}
		if exc.StackTrace == "" {
			exc.StackTrace = string(v.GetStringBytes("stack_trace"))
		}
		return exc
	}

	trace := text(v)
	if trace == "" {
		return nil
	}
	exc := &event.Exception{StackTrace: trace}
	first, _, _ := strings.Cut(trace, "\n")
	if typ, msg, ok := strings.Cut(first, ": "); ok && !strings.ContainsAny(typ, " \t") {
		exc.Type, exc.Message = typ, strings.TrimSpace(msg)
	} else {
		exc.Message = strings.TrimSpace(first)
	}
	return exc
}

// text returns a string member as is and any other value as JSON.
func text(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return v.String()
}

// Value converts a JSON value into an attribute value. Integral numbers become int64 and
// other numbers float64. Objects become mappings, or structures when they carry a type tag.
func Value(v *fastjson.Value) event.Value {
	switch v.Type() {
	case fastjson.TypeNull:
		return event.S(nil)
	case fastjson.TypeTrue:
		return event.S(true)
	case fastjson.TypeFalse:
		return event.S(false)
	case fastjson.TypeString:
		return event.S(string(v.GetStringBytes()))
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return event.S(n)
		}
		f, _ := v.Float64()
		return event.S(f)
	case fastjson.TypeArray:
		arr, _ := v.Array()
		seq := make(event.Sequence, len(arr))
		for i, item := range arr {
			seq[i] = Value(item)
		}
		return seq
	case fastjson.TypeObject:
		obj, _ := v.Object()
		return object(obj)
	}
	return event.S(v.String())
}

func object(obj *fastjson.Object) event.Value {
	var tag string
	for _, name := range TypeTagMembers {
		if t := obj.Get(name); t != nil && t.Type() == fastjson.TypeString {
			tag = string(t.GetStringBytes())
			break
		}
	}

	if tag == "" {
		m := make(event.Mapping, 0, obj.Len())
		obj.Visit(func(key []byte, v *fastjson.Value) {
			m = append(m, event.MapEntry{Key: event.S(string(key)), Value: Value(v)})
		})
		return m
	}

	s := event.Structure{TypeTag: tag}
	obj.Visit(func(key []byte, v *fastjson.Value) {
		name := string(key)
		for _, tagName := range TypeTagMembers {
			if name == tagName {
				return
			}
		}
		s.Fields = append(s.Fields, event.Field{Name: name, Value: Value(v)})
	})
	return s
}
