package sanitize

import (
	"math/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertOnlyAllowed(t *testing.T, s *Sanitizer, out string) {
	t.Helper()
	for _, r := range out {
		if r == '`' {
			continue
		}
		assert.Truef(t, s.AllowList().Allows(r), "unexpected %q in %q", r, out)
	}
}

// assertNoBareWord fails if word occurs in out as a whole word without backticks around it.
func assertNoBareWord(t *testing.T, out, word string) {
	t.Helper()
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	for _, loc := range re.FindAllStringIndex(out, -1) {
		quoted := loc[0] > 0 && out[loc[0]-1] == '`' && loc[1] < len(out) && out[loc[1]] == '`'
		assert.Truef(t, quoted, "bare %q in %q", word, out)
	}
}

// TestSanitize tests the sanitizer against known inputs.
func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain identifier", "Checkout", "Checkout"},
		{"keyword", "select", "`select`"},
		{"keyword keeps case", "Orders FROM Cart", "Orders `FROM` Cart"},
		{"keyword inside word", "selection", "selection"},
		{"plural keyword", "seconds", "`seconds`"},
		{"singular and plural", "1 second 2 seconds", "1 `second` 2 `seconds`"},
		{"several keywords", "since day ago", "`since` `day` `ago`"},
		{"punctuation stripped", "Pay!ment (v2)", "Payment v2"},
		{"allowed punctuation", "api.v1-orders:get_all", "api.v1-orders:get_all"},
		{"input backticks stripped", "`weird`", "weird"},
		{"stripping cannot hide keyword", "se!lect", "`select`"},
		{"keyword next to punctuation", "day-end", "`day`-`end`"},
		{"underscore joins words", "end_time", "end_time"},
		{"empty", "", ""},
	}

	s := New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, s.Sanitize(tc.input))
		})
	}
}

// TestSanitizeMetricAllowList tests the narrower allow-list.
func TestSanitizeMetricAllowList(t *testing.T) {
	s := New(WithAllowList(MetricAllowList))

	assert.Equal(t, "apiv1orders:get_all", s.Sanitize("api.v1-orders:get_all"))
	assert.Equal(t, "Time a thread sleep for 2 `seconds`", s.Sanitize("Time a thread sleep for 2 seconds."))
}

// TestSanitizeReservedWordWrapping checks every keyword, in lower and upper case.
func TestSanitizeReservedWordWrapping(t *testing.T) {
	s := New()
	for _, w := range ReservedWords {
		for _, variant := range []string{w, strings.ToUpper(w)} {
			out := s.Sanitize("value " + variant)
			assert.Contains(t, out, "`"+variant+"`")
			assertNoBareWord(t, out, w)
		}
	}
}

// TestSanitizeWordBoundary checks that overlapping keywords are matched independently.
func TestSanitizeWordBoundary(t *testing.T) {
	s := New()
	pairs := [][2]string{{"second", "seconds"}, {"day", "days"}, {"end", "endtime"}, {"begin", "begintime"}, {"in", "is"}}
	for _, p := range pairs {
		out := s.Sanitize(p[1])
		assert.Equal(t, "`"+p[1]+"`", out)
		assert.NotContains(t, out, "`"+p[0]+"`")
	}
}

// TestSanitizeAllowListProperty feeds random text and checks the output alphabet.
func TestSanitizeAllowListProperty(t *testing.T) {
	alphabet := []rune("abcdefghijklmnopqrstuvwxyzSELECT0123456789 :_.-`!@#$%^&*()[]{}\"'é漢\t\n")
	rng := rand.New(rand.NewSource(7))

	for _, s := range []*Sanitizer{New(), New(WithAllowList(MetricAllowList))} {
		for i := 0; i < 500; i++ {
			n := rng.Intn(40)
			in := make([]rune, n)
			for j := range in {
				in[j] = alphabet[rng.Intn(len(alphabet))]
			}
			out := s.Sanitize(string(in))
			assertOnlyAllowed(t, s, out)
			for _, w := range ReservedWords {
				assertNoBareWord(t, out, w)
			}
		}
	}
}

// TestSanitizeDeterministic checks that repeated calls agree.
func TestSanitizeDeterministic(t *testing.T) {
	in := "select from where since until with or and not"
	first := New().Sanitize(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, New().Sanitize(in))
	}
}

// TestWithReservedWords replaces the keyword list.
func TestWithReservedWords(t *testing.T) {
	s := New(WithReservedWords([]string{"Foo", "foo", " "}))

	assert.Equal(t, "`foo` select", s.Sanitize("foo select"))
	assert.Equal(t, "`select`", String("select"))
}
