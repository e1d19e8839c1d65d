// ABOUTME: Parsing of DELTA coding strings into typed values
// ABOUTME: Type-agnostic coding parser plus character-aware coercion

package delta

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidValue reports a coding that cannot be read for a character
var ErrInvalidValue = errors.New("invalid value")

var (
	rangePattern = regexp.MustCompile(`^(-?[\d.]{1,10})\s*-\s*(-?[\d.]{1,10})$`)
	intPattern   = regexp.MustCompile(`^-?\d+$`)
	realPattern  = regexp.MustCompile(`^-?\d*\.\d+$`)
)

// ParseCoding reads a raw DELTA coding without knowing the character type.
// Order of recognition: pseudo-values, ranges, integers, reals, "&" or "/"
// state sets, then text.
func ParseCoding(raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errors.Wrap(ErrInvalidValue, "empty coding")
	}

	switch s {
	case "U":
		return Unknown, nil
	case "V":
		return Variable, nil
	case "-":
		return NotApplicable, nil
	}

	if m := rangePattern.FindStringSubmatch(s); m != nil && strings.Count(s, ".") <= 2 {
		lo, errLo := strconv.ParseFloat(m[1], 64)
		hi, errHi := strconv.ParseFloat(m[2], 64)
		if errLo == nil && errHi == nil {
			return NewRange(lo, hi), nil
		}
	}

	if intPattern.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return Integer(n), nil
		}
	}

	if realPattern.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return Real(f), nil
		}
	}

	if strings.ContainsAny(s, "&/") {
		if states, ok := parseStateList(s); ok {
			return NewMultistateSet(states...), nil
		}
	}

	return Text(s), nil
}

func parseStateList(s string) ([]int, bool) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '&' || r == '/' })
	if len(parts) == 0 {
		return nil, false
	}
	states := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, false
		}
		states = append(states, n)
	}
	return states, true
}

// Coerce adapts a parsed coding to the character's declared type. Values
// with no sensible conversion are returned unchanged.
func Coerce(c *Character, v Value) Value {
	if v == nil || v.IsPseudo() {
		return v
	}

	switch c.Type {
	case TypeUnorderedMultistate, TypeOrderedMultistate:
		switch x := v.(type) {
		case Integer:
			return NewMultistateSet(int(x))
		case Range:
			if x.Min == float64(int(x.Min)) && x.Max == float64(int(x.Max)) && x.Max-x.Min < 1000 {
				states := make([]int, 0, int(x.Max-x.Min)+1)
				for n := int(x.Min); n <= int(x.Max); n++ {
					states = append(states, n)
				}
				return NewMultistateSet(states...)
			}
		}
	case TypeReal:
		if x, ok := v.(Integer); ok {
			return Real(float64(x))
		}
	case TypeInteger:
		if x, ok := v.(Real); ok && float64(x) == float64(int64(x)) {
			return Integer(int64(x))
		}
	case TypeText:
		return Text(v.String())
	}
	return v
}

// ParseValue reads a user-supplied filter value for a character. The result
// matches the character's type; pseudo-values are passed through so the
// engine can reject them.
func ParseValue(c *Character, raw string) (Value, error) {
	if c == nil {
		return nil, errors.Wrap(ErrInvalidValue, "nil character")
	}

	if c.Type == TypeText {
		s := strings.TrimSpace(raw)
		if s == "" {
			return nil, errors.Wrap(ErrInvalidValue, "empty text value")
		}
		return Text(s), nil
	}

	v, err := ParseCoding(raw)
	if err != nil {
		return nil, err
	}
	v = Coerce(c, v)
	if v.IsPseudo() {
		return v, nil
	}

	switch c.Type {
	case TypeUnorderedMultistate, TypeOrderedMultistate:
		set, ok := v.(MultistateSet)
		if !ok {
			return nil, errors.WithHintf(
				errors.Wrapf(ErrInvalidValue, "character %d expects state numbers, got %q", c.Number, raw),
				"use a state number such as 2, or combine states with &: 1&3")
		}
		if len(c.States) > 0 {
			for _, n := range set.States() {
				if _, ok := c.States[n]; !ok {
					return nil, errors.Wrapf(ErrInvalidValue, "character %d has no state %d", c.Number, n)
				}
			}
		}
		return set, nil
	case TypeInteger, TypeReal:
		switch v.(type) {
		case Integer, Real, Range:
			return v, nil
		}
		return nil, errors.WithHint(
			errors.Wrapf(ErrInvalidValue, "character %d expects a number or range, got %q", c.Number, raw),
			"use a number such as 4 or a range such as 3-5")
	}
	return v, nil
}
