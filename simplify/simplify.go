// Package simplify reduces nested attribute values to the primitives accepted by the Log API.
package simplify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/event"
)

// KeyValue replaces a mapping whose keys collide once simplified.
type KeyValue struct {
	Key   any `json:"Key"`
	Value any `json:"Value"`
}

// Option configures a call to Value.
type Option func(*options)

type options struct {
	onCollision func(key string)
}

// WithCollisionReporter registers fn to be called with the colliding key whenever a
// mapping is returned as a list of KeyValue.
func WithCollisionReporter(fn func(key string)) Option {
	return func(o *options) { o.onCollision = fn }
}

// Value simplifies v.
//
//   - bool, integer, float, json.Number and []byte scalars are returned unchanged
//   - any other scalar, nil included, becomes its text
//   - a Sequence becomes []any
//   - a Structure becomes map[string]any, its type tag kept under "$typeTag"
//   - a Mapping becomes map[string]any keyed by the text of each simplified key. If two
//     keys share a text, the whole mapping becomes []KeyValue instead, in entry order.
func Value(v event.Value, opts ...Option) any {
	o := options{}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o.simplify(v)
}

func (o *options) simplify(v event.Value) any {
	switch v := v.(type) {
	case nil:
		return Scalar(nil)
	case event.Scalar:
		return Scalar(v.V)
	case event.Sequence:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = o.simplify(e)
		}
		return out
	case event.Mapping:
		return o.mapping(v)
	case event.Structure:
		out := make(map[string]any, len(v.Fields)+1)
		for _, f := range v.Fields {
			out[f.Name] = o.simplify(f.Value)
		}
		if v.TypeTag != "" {
			out[common.TypeTagKey] = v.TypeTag
		}
		return out
	default:
		return v.String()
	}
}

func (o *options) mapping(m event.Mapping) any {
	out := make(map[string]any, len(m))
	for _, e := range m {
		key := keyString(o.simplify(e.Key))
		if _, dup := out[key]; dup {
			if o.onCollision != nil {
				o.onCollision(key)
			}
			return o.pairs(m)
		}
		out[key] = o.simplify(e.Value)
	}
	return out
}

func (o *options) pairs(m event.Mapping) []KeyValue {
	out := make([]KeyValue, len(m))
	for i, e := range m {
		out[i] = KeyValue{Key: o.simplify(e.Key), Value: o.simplify(e.Value)}
	}
	return out
}

// Scalar simplifies a single primitive.
func Scalar(v any) any {
	switch v := v.(type) {
	case nil:
		return "null"
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		json.Number, []byte:
		return v
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func keyString(k any) string {
	switch k := k.(type) {
	case string:
		return k
	case []byte:
		return fmt.Sprintf("%X", k)
	default:
		return fmt.Sprint(k)
	}
}
