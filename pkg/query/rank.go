// ABOUTME: Selectivity ranking of characters by discriminating power
// ABOUTME: Score = distinct values x coding completeness over an item set

package query

import (
	"sort"
	"time"

	"github.com/nainya/deltakey/pkg/delta"
)

const minCompleteness = 0.5

// Rank scores every eligible character over items and returns them best
// first. Characters that are excluded, mandatory, omitted from keys, coded
// for no item, coded for at most half their codings, or invariant are left
// out. Ties on score fall back to distinct values, then character number.
func (e *Engine) Rank(items []*delta.Item, excluded map[int]bool) []CharacterInfo {
	start := time.Now()

	ranked := make([]CharacterInfo, 0)
	for _, c := range e.matrix.Characters() {
		if excluded[c.Number] || c.Mandatory || c.OmitFromKey {
			continue
		}

		info, ok := measure(c, items)
		if !ok {
			continue
		}
		if info.CodingCompleteness <= minCompleteness || info.DistinctValues <= 1 {
			continue
		}
		ranked = append(ranked, info)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.SelectivityScore != b.SelectivityScore {
			return a.SelectivityScore > b.SelectivityScore
		}
		if a.DistinctValues != b.DistinctValues {
			return a.DistinctValues > b.DistinctValues
		}
		return a.Number < b.Number
	})

	e.trace("rank", start).
		Int("items", len(items)).
		Int("excluded", len(excluded)).
		Int("ranked", len(ranked)).
		Msg("ranked characters")

	return ranked
}

// Describe measures a single character over items without applying the
// ranking eligibility rules. A character no item codes has zero statistics.
func (e *Engine) Describe(character int, items []*delta.Item) (CharacterInfo, error) {
	c, err := e.Character(character)
	if err != nil {
		return CharacterInfo{}, err
	}
	if info, ok := measure(c, items); ok {
		return info, nil
	}
	return CharacterInfo{Number: c.Number, Description: c.Description, Type: c.Type}, nil
}

// measure computes distinct values and completeness for one character. It
// returns false when no item in the set codes the character.
func measure(c *delta.Character, items []*delta.Item) (CharacterInfo, bool) {
	total, coded := 0, 0
	distinct := make(map[string]struct{})

	for _, it := range items {
		v, ok := it.Attribute(c.Number)
		if !ok {
			continue
		}
		total++
		if v.IsPseudo() {
			continue
		}
		coded++
		distinct[delta.Key(v)] = struct{}{}
	}

	if total == 0 {
		return CharacterInfo{}, false
	}

	completeness := float64(coded) / float64(total)
	return CharacterInfo{
		Number:             c.Number,
		Description:        c.Description,
		Type:               c.Type,
		DistinctValues:     len(distinct),
		CodingCompleteness: completeness,
		SelectivityScore:   float64(len(distinct)) * completeness,
	}, true
}

// distinctValues counts distinct non-pseudo codings of a character
func distinctValues(character int, items []*delta.Item) int {
	distinct := make(map[string]struct{})
	for _, it := range items {
		v, ok := it.Attribute(character)
		if !ok || v.IsPseudo() {
			continue
		}
		distinct[delta.Key(v)] = struct{}{}
	}
	return len(distinct)
}
