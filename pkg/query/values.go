// ABOUTME: Value enumeration for a character over an item set
// ABOUTME: Groups codings, counts items and labels multistate values

package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/nainya/deltakey/pkg/delta"
)

// ValuesOf groups the non-pseudo codings of a character over items and
// returns one entry per distinct value, most common first, ties by label.
func (e *Engine) ValuesOf(character int, items []*delta.Item) ([]ValueCount, error) {
	c, err := e.Character(character)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*ValueCount)
	for _, it := range items {
		v, ok := it.Attribute(character)
		if !ok || v.IsPseudo() {
			continue
		}
		key := delta.Key(v)
		if g, ok := groups[key]; ok {
			g.Count++
			continue
		}
		groups[key] = &ValueCount{Value: v, Label: Label(c, v), Count: 1}
	}

	values := make([]ValueCount, 0, len(groups))
	for _, g := range groups {
		values = append(values, *g)
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		if values[i].Label != values[j].Label {
			return values[i].Label < values[j].Label
		}
		return delta.Key(values[i].Value) < delta.Key(values[j].Value)
	})

	return values, nil
}

// Label renders a value for display, substituting state descriptions for
// multistate values where the character declares them.
func Label(c *delta.Character, v delta.Value) string {
	set, ok := v.(delta.MultistateSet)
	if !ok || c == nil || len(c.States) == 0 {
		return v.String()
	}

	parts := make([]string, 0, set.Len())
	for _, n := range set.States() {
		if desc, ok := c.States[n]; ok {
			parts = append(parts, strconv.Itoa(n)+". "+desc)
		} else {
			parts = append(parts, strconv.Itoa(n))
		}
	}
	return strings.Join(parts, " & ")
}
