package voice

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var punctuation = regexp.MustCompile(`[^\p{L}\p{M}\p{N}\s]+`)

// Normalize lowercases s, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	s = punctuation.ReplaceAllString(strings.ToLower(s), "")
	return strings.Join(strings.Fields(s), " ")
}

// Matcher decides whether a transcript contains the trigger phrase.
type Matcher struct {
	// Phonetic also accepts a run of heard words that sounds like the phrase,
	// for engines that mistranscribe uncommon words.
	Phonetic bool
	// Threshold is the minimum Jaro-Winkler score for a phonetic match.
	Threshold float64
}

const defaultPhoneticThreshold = 0.85

// Match reports whether heard contains phrase once both are normalized.
func (m Matcher) Match(heard, phrase string) bool {
	h, p := Normalize(heard), Normalize(phrase)
	if p == "" {
		return false
	}
	if strings.Contains(h, p) {
		return true
	}
	if !m.Phonetic {
		return false
	}
	return m.phoneticMatch(strings.Fields(h), strings.Fields(p))
}

func (m Matcher) phoneticMatch(heard, phrase []string) bool {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = defaultPhoneticThreshold
	}
	want := strings.Join(phrase, " ")

	for i := 0; i+len(phrase) <= len(heard); i++ {
		window := heard[i : i+len(phrase)]
		if !soundsAlike(window, phrase) {
			continue
		}
		if matchr.JaroWinkler(strings.Join(window, " "), want, false) >= threshold {
			return true
		}
	}
	return false
}

// soundsAlike requires every word pair to share a Double Metaphone code.
func soundsAlike(a, b []string) bool {
	for i := range a {
		ap, as := matchr.DoubleMetaphone(a[i])
		bp, bs := matchr.DoubleMetaphone(b[i])
		if ap == "" && bp == "" {
			if a[i] != b[i] {
				return false
			}
			continue
		}
		if !(ap != "" && (ap == bp || ap == bs)) && !(as != "" && (as == bp || as == bs)) {
			return false
		}
	}
	return true
}
