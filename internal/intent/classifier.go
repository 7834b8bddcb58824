package intent

import (
	"fmt"
	"strings"

	"michi-relay/internal/domain"
)

// Classifier maps transcripts to categories using fuzzy phrase matching.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	lexicon   Lexicon
	threshold int
}

func NewClassifier(lexicon Lexicon, threshold int) (*Classifier, error) {
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("threshold %d out of range 0..100", threshold)
	}
	return &Classifier{
		lexicon:   lexicon,
		threshold: threshold,
	}, nil
}

// Classify returns the first chain category with a matching phrase, or
// CategoryTalk when nothing matches.
func (c *Classifier) Classify(transcript string) domain.Category {
	text := strings.ToLower(transcript)
	for _, e := range c.lexicon.Chain {
		if c.anyMatch(e.Phrases, text) {
			return e.Category
		}
	}
	return domain.CategoryTalk
}

// IsWake reports whether transcript contains a wake phrase.
func (c *Classifier) IsWake(transcript string) bool {
	return c.anyMatch(c.lexicon.Wake, strings.ToLower(transcript))
}

func (c *Classifier) Threshold() int {
	return c.threshold
}

func (c *Classifier) anyMatch(phrases []string, text string) bool {
	for _, p := range phrases {
		if matchLower(p, text, c.threshold) {
			return true
		}
	}
	return false
}
