// Package sanitize turns free text into identifiers that are safe to use with NRQL.
//
// Sanitizing strips every character outside an allow-list and then wraps every
// standalone NRQL keyword in backticks, matching case-insensitively and keeping
// the original case. Stripping happens first so that removing a character can
// never assemble a bare keyword out of its pieces.
package sanitize

import (
	"regexp"
	"sort"
	"strings"
)

// ReservedWords are the NRQL keywords that must be quoted when used as identifiers.
var ReservedWords = []string{
	"add", "ago", "and", "as", "auto", "begin", "begintime", "compare",
	"day", "days", "end", "endtime", "explain", "facet", "from",
	"hour", "hours", "in", "is", "like", "limit", "minute", "minutes",
	"month", "months", "not", "null", "offset", "or", "second", "seconds",
	"select", "since", "timeseries", "until", "week", "weeks", "where", "with",
}

// AllowList is the set of characters kept by the sanitizer. ASCII letters and digits
// are always allowed; Punctuation lists every other allowed character.
type AllowList struct {
	Punctuation string
}

var (
	// LogAllowList keeps ":", "_", ".", "-" and space. It is the default.
	LogAllowList = AllowList{Punctuation: ":_.- "}
	// MetricAllowList keeps ":", "_" and space, the narrower set used for metric names.
	MetricAllowList = AllowList{Punctuation: ":_ "}
)

// Allows reports whether r is kept.
func (a AllowList) Allows(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '`':
		return false
	}
	return strings.ContainsRune(a.Punctuation, r)
}

type pattern struct {
	word string
	re   *regexp.Regexp
}

// Sanitizer is immutable after New and safe for concurrent use.
type Sanitizer struct {
	allow    AllowList
	patterns []pattern
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithAllowList sets the characters kept by the sanitizer.
func WithAllowList(a AllowList) Option {
	return func(s *Sanitizer) { s.allow = a }
}

// WithReservedWords replaces the keyword list.
func WithReservedWords(words []string) Option {
	return func(s *Sanitizer) { s.patterns = compile(words) }
}

// New builds a Sanitizer. Keyword patterns are compiled once here and applied in
// lexical order of the lower-cased keyword.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{allow: LogAllowList}
	for _, fn := range opts {
		if fn != nil {
			fn(s)
		}
	}
	if s.patterns == nil {
		s.patterns = compile(ReservedWords)
	}
	return s
}

func compile(words []string) []pattern {
	seen := make(map[string]bool, len(words))
	var sorted []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		sorted = append(sorted, w)
	}
	sort.Strings(sorted)

	patterns := make([]pattern, 0, len(sorted))
	for _, w := range sorted {
		patterns = append(patterns, pattern{
			word: w,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`),
		})
	}
	return patterns
}

// AllowList returns the configured allow-list.
func (s *Sanitizer) AllowList() AllowList { return s.allow }

// Sanitize returns text with disallowed characters removed and keywords quoted.
func (s *Sanitizer) Sanitize(text string) string {
	safe := strings.Map(func(r rune) rune {
		if s.allow.Allows(r) {
			return r
		}
		return -1
	}, text)

	for _, p := range s.patterns {
		// Skip the regexp when the keyword cannot occur.
		if !strings.Contains(strings.ToLower(safe), p.word) {
			continue
		}
		safe = p.re.ReplaceAllString(safe, "`${0}`")
	}
	return safe
}

// Default uses LogAllowList and ReservedWords.
var Default = New()

// String sanitizes text with Default.
func String(text string) string {
	return Default.Sanitize(text)
}
