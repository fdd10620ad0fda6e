package signal

import (
	"regexp"
	"strconv"
)

// MaxValue is the largest accepted token.
const MaxValue = 100

var plainPattern = regexp.MustCompile(`\d{1,3}`)

// Tokenizer finds intensity values in text.
type Tokenizer struct {
	pattern *regexp.Regexp
	marked  bool
}

// NewTokenizer creates a tokenizer. In marker mode only digit runs directly
// preceded by marker (case-insensitive) count, e.g. "v42" with marker "v".
func NewTokenizer(markerMode bool, marker string) *Tokenizer {
	if !markerMode || marker == "" {
		return &Tokenizer{pattern: plainPattern}
	}
	return &Tokenizer{
		pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(marker) + `(\d{1,3})`),
		marked:  true,
	}
}

// Tokenize returns the values in text, in order, filtered to [0, MaxValue].
func (t *Tokenizer) Tokenize(text string) []int {
	var values []int
	for _, m := range t.pattern.FindAllStringSubmatch(text, -1) {
		digits := m[0]
		if t.marked {
			digits = m[1]
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n < 0 || n > MaxValue {
			continue
		}
		values = append(values, n)
	}
	return values
}
