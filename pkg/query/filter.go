// ABOUTME: Filter chain evaluation against item codings
// ABOUTME: Type-specific predicates; pseudo-values never match

package query

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/nainya/deltakey/pkg/delta"
)

// Apply evaluates a chain from scratch over all items and returns the
// survivors ordered by name. An empty chain returns every item; an empty
// result is not an error.
func (e *Engine) Apply(chain Chain) ([]*delta.Item, error) {
	start := time.Now()

	for i, cl := range chain {
		if _, ok := e.matrix.Character(cl.Character); !ok {
			return nil, errors.Wrapf(characterNotFound(cl.Character), "clause %d", i+1)
		}
		if err := checkTarget(cl.Value); err != nil {
			return nil, errors.Wrapf(err, "clause %d on character %d", i+1, cl.Character)
		}
	}

	survivors := append([]*delta.Item(nil), e.matrix.Items()...)
	for _, cl := range chain {
		survivors = filterItems(survivors, cl)
	}
	SortByName(survivors)

	e.trace("apply", start).
		Int("clauses", len(chain)).
		Int("survivors", len(survivors)).
		Msg("applied filter chain")

	return survivors, nil
}

// Matches reports whether an item survives a single clause
func Matches(it *delta.Item, cl Clause) (bool, error) {
	if err := checkTarget(cl.Value); err != nil {
		return false, err
	}
	return matchItem(it, cl), nil
}

func filterItems(items []*delta.Item, cl Clause) []*delta.Item {
	kept := items[:0]
	for _, it := range items {
		if matchItem(it, cl) {
			kept = append(kept, it)
		}
	}
	return kept
}

func matchItem(it *delta.Item, cl Clause) bool {
	coding, ok := it.Attribute(cl.Character)
	if !ok || coding.IsPseudo() {
		return false
	}
	return match(cl.Value, coding)
}

// checkTarget rejects filter values that no predicate can evaluate
func checkTarget(v delta.Value) error {
	switch x := v.(type) {
	case delta.Integer, delta.Real, delta.Text:
		return nil
	case delta.Range:
		if x.Min > x.Max {
			return errors.Wrapf(ErrUnsupportedValue, "inverted range %s", x)
		}
		return nil
	case delta.MultistateSet:
		if x.Len() == 0 {
			return errors.Wrap(ErrUnsupportedValue, "empty state set")
		}
		return nil
	case delta.Pseudo:
		return errors.WithHint(
			errors.Wrapf(ErrUnsupportedValue, "pseudo-value %s", x),
			"pseudo-values never match; filter on a coded value instead")
	case nil:
		return errors.Wrap(ErrUnsupportedValue, "nil value")
	}
	return errors.Wrapf(ErrUnsupportedValue, "value of type %T", v)
}

// match applies the predicate for a validated target to a non-pseudo coding
func match(target, coding delta.Value) bool {
	switch t := target.(type) {
	case delta.Integer, delta.Real:
		want, _ := delta.Numeric(t)
		got, ok := delta.Numeric(coding)
		return ok && got == want
	case delta.Text:
		c, ok := coding.(delta.Text)
		return ok && c == t
	case delta.Range:
		switch c := coding.(type) {
		case delta.Range:
			return c.Overlaps(t)
		case delta.Integer, delta.Real:
			x, _ := delta.Numeric(c)
			return t.Contains(x)
		}
		return false
	case delta.MultistateSet:
		c, ok := coding.(delta.MultistateSet)
		return ok && c.Intersects(t)
	}
	return false
}

// SortByName orders items by name, then number
func SortByName(items []*delta.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].Number < items[j].Number
	})
}
