package event

import (
	"fmt"
	"strings"
	"time"
)

// Value is an attribute value: a Scalar, Sequence, Mapping or Structure.
type Value interface {
	fmt.Stringer
	isValue()
}

// Scalar holds a single primitive, or nil.
type Scalar struct {
	V any
}

// Sequence is an ordered list of values.
type Sequence []Value

// MapEntry is one key/value pair of a Mapping.
type MapEntry struct {
	Key   Value
	Value Value
}

// Mapping is an ordered list of pairs. Keys are not guaranteed to be unique.
type Mapping []MapEntry

// Field is a named member of a Structure.
type Field struct {
	Name  string
	Value Value
}

// Structure is an object with an optional type tag.
type Structure struct {
	TypeTag string
	Fields  []Field
}

func (Scalar) isValue()    {}
func (Sequence) isValue()  {}
func (Mapping) isValue()   {}
func (Structure) isValue() {}

// S returns a Scalar holding v.
func S(v any) Scalar { return Scalar{V: v} }

// IsNull reports whether v is absent or a nil scalar.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	s, ok := v.(Scalar)
	return ok && s.V == nil
}

func (s Scalar) String() string {
	switch v := s.V.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return fmt.Sprintf("%X", v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = str(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (m Mapping) String() string {
	parts := make([]string, len(m))
	for i, e := range m {
		parts[i] = fmt.Sprintf("(%q: %s)", str(e.Key), str(e.Value))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (s Structure) String() string {
	var b strings.Builder
	if s.TypeTag != "" {
		b.WriteString(s.TypeTag)
		b.WriteByte(' ')
	}
	b.WriteString("{ ")
	for i, f := range s.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(str(f.Value))
	}
	b.WriteString(" }")
	return b.String()
}

func str(v Value) string {
	if v == nil {
		return "null"
	}
	return v.String()
}
