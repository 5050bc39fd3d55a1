// Package wakeword matches speech-recognizer transcripts against the
// "hey hats eye" activation phrase.
//
// Recognizers mishear the phrase in predictable ways ("hot sauce", "hat i"),
// so matching is deliberately lenient: a list of known phrasings is checked
// first, then short utterances containing both a hat-like and an eye-like
// word are accepted.
package wakeword

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// Event is the outcome of matching one utterance.
type Event struct {
	Matched    bool    `json:"matched"`
	Keyword    string  `json:"keyword,omitempty"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text"`

	// Remainder is the text following the wake phrase, which is the
	// question when the user speaks both in one breath.
	Remainder string    `json:"remainder,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultPhrases are accepted anywhere in the utterance.
var DefaultPhrases = []string{
	"hey hats eye", "hey hats i", "hey hat eye", "hey hat i",
	"hats eye", "hat eye", "hats i", "hat i",
	"hot sauce", "hot saw", "hat sauce", "hat saw",
	"heart sauce", "hard sauce", "hot sighs", "hat sighs",
	"hey hot", "hey hat", "hey heart", "hey hard",
	"hat seye", "hats ai", "hats aye", "hats sauce",
	"hot eye", "hot i", "heart eye", "hard eye",
}

var (
	hatWords = []string{"hats", "hat", "hat's", "hot", "hut", "hart", "heart", "hard"}
	eyeWords = []string{"eye", "i", "ai", "aye", "sauce", "saws", "saw", "so", "sigh", "sighs"}
)

// Confidence assigned per match kind.
const (
	ConfidencePhrase   = 1.0
	ConfidenceKeywords = 0.7
	ConfidenceGreeting = 0.6
)

// Matcher matches transcripts. The zero value is not usable; use New.
type Matcher struct {
	phrases []string
	hats    map[string]bool
	eyes    map[string]bool
	now     func() time.Time
}

// New creates a matcher with DefaultPhrases plus extra.
func New(extra ...string) *Matcher {
	m := &Matcher{
		hats: toSet(hatWords),
		eyes: toSet(eyeWords),
		now:  time.Now,
	}
	for _, p := range append(append([]string(nil), extra...), DefaultPhrases...) {
		if p = Normalize(p); p != "" {
			m.phrases = append(m.phrases, p)
		}
	}
	// Longest first so "hey hats eye" wins over "hats eye" and the
	// remainder is computed after the full phrase.
	sort.SliceStable(m.phrases, func(i, j int) bool {
		return len(m.phrases[i]) > len(m.phrases[j])
	})
	return m
}

// Match checks one transcript.
func (m *Matcher) Match(text string) Event {
	norm := Normalize(text)
	ev := Event{Text: text, Timestamp: m.now()}
	if norm == "" {
		return ev
	}

	padded := " " + norm + " "
	for _, p := range m.phrases {
		if i := strings.Index(padded, " "+p+" "); i >= 0 {
			ev.Matched = true
			ev.Keyword = p
			ev.Confidence = ConfidencePhrase
			ev.Remainder = strings.TrimSpace(padded[i+len(p)+2:])
			return ev
		}
	}

	words := strings.Fields(norm)
	if len(words) < 2 {
		return ev
	}
	hasHat, hasEye := false, false
	for _, w := range words {
		hasHat = hasHat || m.hats[w]
		hasEye = hasEye || m.eyes[w]
	}
	if !hasHat || !hasEye {
		return ev
	}

	switch {
	case len(words) <= 3:
		ev.Matched = true
		ev.Confidence = ConfidenceKeywords
	case len(words) <= 4 && (words[0] == "hey" || words[0] == "hi"):
		ev.Matched = true
		ev.Confidence = ConfidenceGreeting
	}
	if ev.Matched {
		ev.Keyword = norm
	}
	return ev
}

// StripWakePhrase removes a leading wake phrase from an utterance and
// returns the rest. Text without a wake phrase is returned normalized.
func (m *Matcher) StripWakePhrase(text string) string {
	ev := m.Match(text)
	if ev.Matched && ev.Remainder != "" {
		return ev.Remainder
	}
	if ev.Matched {
		return ""
	}
	return Normalize(text)
}

// Normalize lowercases text, drops punctuation except apostrophes and
// collapses whitespace.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func toSet(words []string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}
