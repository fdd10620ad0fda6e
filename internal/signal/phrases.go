package signal

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Level is a named intensity (0-100) triggered by any of its phrases.
type Level struct {
	Name    string   `yaml:"name" json:"name"`
	Value   int      `yaml:"value" json:"value"`
	Phrases []string `yaml:"phrases" json:"phrases"`
}

type phraseFile struct {
	Levels []Level `yaml:"levels"`
}

// DefaultLevels is used when phrase matching is enabled without a file.
func DefaultLevels() []Level {
	return []Level{
		{Name: "low", Value: 25, Phrases: []string{"gently", "softly", "slowly", "barely"}},
		{Name: "mid", Value: 50, Phrases: []string{"steady", "moderate", "medium"}},
		{Name: "high", Value: 75, Phrases: []string{"harder", "faster", "intense", "strong"}},
		{Name: "max", Value: 100, Phrases: []string{"maximum", "full power", "all the way"}},
	}
}

// LoadLevels reads phrase levels from a YAML or JSON file of the form
//
//	levels:
//	  - name: low
//	    value: 25
//	    phrases: ["gently", "softly"]
func LoadLevels(path string) ([]Level, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading phrase file: %w", err)
	}
	var f phraseFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhrases, err)
	}
	if err := validateLevels(f.Levels); err != nil {
		return nil, err
	}
	return f.Levels, nil
}

func validateLevels(levels []Level) error {
	if len(levels) == 0 {
		return fmt.Errorf("%w: no levels defined", ErrInvalidPhrases)
	}
	for _, l := range levels {
		if l.Value < 0 || l.Value > MaxValue {
			return fmt.Errorf("%w: level %q value %d outside 0-%d", ErrInvalidPhrases, l.Name, l.Value, MaxValue)
		}
		if len(l.Phrases) == 0 {
			return fmt.Errorf("%w: level %q has no phrases", ErrInvalidPhrases, l.Name)
		}
	}
	return nil
}

// PhraseMatcher finds the first level with a phrase in the text. Phrases
// match whole words, ignoring case and the amount of space between words.
type PhraseMatcher struct {
	levels   []Level
	patterns [][]*regexp.Regexp
}

// NewPhraseMatcher creates a matcher. Levels are checked in order.
func NewPhraseMatcher(levels []Level) *PhraseMatcher {
	m := &PhraseMatcher{
		levels:   make([]Level, len(levels)),
		patterns: make([][]*regexp.Regexp, len(levels)),
	}
	for i, l := range levels {
		phrases := make([]string, 0, len(l.Phrases))
		for _, p := range l.Phrases {
			words := strings.Fields(strings.ToLower(p))
			if len(words) == 0 {
				continue
			}
			quoted := make([]string, len(words))
			for j, w := range words {
				quoted[j] = regexp.QuoteMeta(w)
			}
			phrases = append(phrases, strings.Join(words, " "))
			m.patterns[i] = append(m.patterns[i],
				regexp.MustCompile(`(?i)(^|\W)`+strings.Join(quoted, `\s+`)+`($|\W)`))
		}
		m.levels[i] = Level{Name: l.Name, Value: l.Value, Phrases: phrases}
	}
	return m
}

// Match returns the first matching level.
func (m *PhraseMatcher) Match(text string) (Level, bool) {
	for i, patterns := range m.patterns {
		for _, re := range patterns {
			if re.MatchString(text) {
				return m.levels[i], true
			}
		}
	}
	return Level{}, false
}
