package signal

// Reading is what one ingestion tick sees.
type Reading struct {
	Text   string `json:"text"`
	Values []int  `json:"values,omitempty"`

	// Level is set when Values is empty and a phrase matched.
	Level *Level `json:"level,omitempty"`
}

// Empty reports whether the reading carries nothing to apply.
func (r Reading) Empty() bool {
	return len(r.Values) == 0 && r.Level == nil
}

// Extractor combines a feed, a tokenizer and an optional phrase matcher.
type Extractor struct {
	feed      *Feed
	tokenizer *Tokenizer
	phrases   *PhraseMatcher
}

// NewExtractor creates an extractor. phrases may be nil to disable phrase levels.
func NewExtractor(feed *Feed, tokenizer *Tokenizer, phrases *PhraseMatcher) *Extractor {
	return &Extractor{feed: feed, tokenizer: tokenizer, phrases: phrases}
}

// Read extracts a Reading from the latest feed text.
// It returns false when no text has arrived yet.
func (e *Extractor) Read() (Reading, bool) {
	text, _, ok := e.feed.Latest()
	if !ok {
		return Reading{}, false
	}
	r := Reading{Text: text, Values: e.tokenizer.Tokenize(text)}
	if len(r.Values) == 0 && e.phrases != nil {
		if level, matched := e.phrases.Match(text); matched {
			r.Level = &level
		}
	}
	return r, true
}
