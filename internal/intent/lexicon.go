package intent

import (
	"fmt"
	"strings"

	"michi-relay/internal/domain"
)

// Entry binds a category to its trigger phrases.
type Entry struct {
	Category domain.Category
	Phrases  []string
}

// Lexicon holds the wake phrases and the ordered classification chain.
// Order of Chain is the priority order; the first entry that matches wins.
type Lexicon struct {
	Wake  []string
	Chain []Entry
}

func DefaultLexicon() Lexicon {
	return Lexicon{
		Wake: []string{"michi", "hai michi", "halo michi", "robot michi", "halo"},
		Chain: []Entry{
			{Category: domain.CategorySleep, Phrases: []string{"sleep", "tidur", "istirahat", "berhenti"}},
			{Category: domain.CategorySad, Phrases: []string{"jelek", "bosan", "sedih", "murung"}},
			{Category: domain.CategoryHappy, Phrases: []string{"keren", "bagus", "senang", "hebat"}},
			{Category: domain.CategoryMad, Phrases: []string{"ribut", "berantem", "marah", "kesal"}},
			{Category: domain.CategoryDance, Phrases: []string{"menari", "dansa", "dance", "nari"}},
		},
	}
}

// WithOverrides returns a copy of l where the given categories use the
// supplied phrases instead of the defaults. The "wake" key replaces the wake
// phrases. Talk cannot be overridden since it never matches explicitly.
func (l Lexicon) WithOverrides(wake []string, phrases map[string][]string) (Lexicon, error) {
	out := Lexicon{
		Wake:  normalize(l.Wake),
		Chain: make([]Entry, len(l.Chain)),
	}
	for i, e := range l.Chain {
		out.Chain[i] = Entry{Category: e.Category, Phrases: normalize(e.Phrases)}
	}

	if len(wake) > 0 {
		out.Wake = normalize(wake)
	}

	for name, list := range phrases {
		c, err := domain.ParseCategory(strings.ToLower(name))
		if err != nil {
			return Lexicon{}, err
		}
		switch c {
		case domain.CategoryTalk:
			return Lexicon{}, fmt.Errorf("category %q is the fallback and takes no phrases", name)
		case domain.CategoryWake:
			out.Wake = normalize(list)
			continue
		}
		for i := range out.Chain {
			if out.Chain[i].Category == c {
				out.Chain[i].Phrases = normalize(list)
			}
		}
	}

	return out, nil
}

// Phrases returns the trigger phrases of c, or nil when c has none.
func (l Lexicon) Phrases(c domain.Category) []string {
	if c == domain.CategoryWake {
		return l.Wake
	}
	for _, e := range l.Chain {
		if e.Category == c {
			return e.Phrases
		}
	}
	return nil
}

func normalize(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
