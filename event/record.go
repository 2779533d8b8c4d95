// Package event defines the structured log records accepted by the sink.
package event

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity of a record. Levels are ordered, Verbose being the lowest.
type Level int

const (
	Verbose Level = iota
	Debug
	Information
	Warning
	Error
	Fatal
)

var levelNames = [...]string{"Verbose", "Debug", "Information", "Warning", "Error", "Fatal"}

func (l Level) String() string {
	if l < Verbose || l > Fatal {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel parses a level name, case-insensitively. Common aliases such as "info" and "warn" are accepted.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "trace":
		return Verbose, nil
	case "debug":
		return Debug, nil
	case "information", "info":
		return Information, nil
	case "warning", "warn":
		return Warning, nil
	case "error", "err":
		return Error, nil
	case "fatal", "critical", "panic":
		return Fatal, nil
	}
	return Verbose, fmt.Errorf("unknown level %q", s)
}

// Exception describes an error attached to a record.
type Exception struct {
	Type       string
	Message    string
	StackTrace string
}

func (e *Exception) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// Attribute is a named value attached to a record.
type Attribute struct {
	Key   string
	Value Value
}

// Record is one structured log entry. A Record is never modified once submitted.
type Record struct {
	Timestamp       time.Time
	Level           Level
	MessageTemplate string
	Message         string
	Exception       *Exception
	Attributes      []Attribute
}

// Lookup returns the value of the attribute named key.
func (r *Record) Lookup(key string) (Value, bool) {
	return lookup(r.Attributes, key)
}

// Has reports whether the record carries an attribute named key.
func (r *Record) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}
