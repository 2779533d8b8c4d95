package event

import "strings"

// Render substitutes the {Name} holes of a message template with the matching attribute
// values. A hole may carry a capturing prefix (@ or $), an alignment or a format; only the
// name is used. {{ and }} render as single braces. Holes without a matching attribute are
// kept verbatim.
func Render(template string, attrs []Attribute) string {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				return b.String()
			}
			hole := template[i+1 : i+1+end]
			if v, ok := lookup(attrs, holeName(hole)); ok {
				b.WriteString(str(v))
			} else {
				b.WriteString(template[i : i+end+2])
			}
			i += end + 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func holeName(hole string) string {
	name := strings.TrimLeft(hole, "@$")
	if cut := strings.IndexAny(name, ",:"); cut >= 0 {
		name = name[:cut]
	}
	return strings.TrimSpace(name)
}

func lookup(attrs []Attribute, key string) (Value, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}
