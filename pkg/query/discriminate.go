// ABOUTME: Discriminating-character filter over the current survivors
// ABOUTME: Drops candidates that are constant among the remaining items

package query

import (
	"github.com/nainya/deltakey/pkg/delta"
)

// Prune drops candidates that no longer vary among the survivors. A
// character can vary across the whole matrix and still be constant among
// the items left after earlier clauses. With one survivor or none there is
// nothing left to discriminate.
func (e *Engine) Prune(candidates []CharacterInfo, survivors []*delta.Item) []CharacterInfo {
	if len(survivors) <= 1 {
		return []CharacterInfo{}
	}

	kept := make([]CharacterInfo, 0, len(candidates))
	for _, c := range candidates {
		if distinctValues(c.Number, survivors) > 1 {
			kept = append(kept, c)
		}
	}
	return kept
}
