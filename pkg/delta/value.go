// ABOUTME: Closed attribute value variant for item codings and filter targets
// ABOUTME: Scalars, multistate sets, ranges and the three pseudo-values

package delta

import (
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant of a Value
type Kind string

const (
	KindInteger       Kind = "integer"
	KindReal          Kind = "real"
	KindText          Kind = "text"
	KindMultistate    Kind = "multistate"
	KindRange         Kind = "range"
	KindUnknown       Kind = "unknown"
	KindVariable      Kind = "variable"
	KindNotApplicable Kind = "not_applicable"
)

// Value is how an item is coded for one character, or the target of a
// filter clause. The set of implementations is closed.
type Value interface {
	// Kind returns the variant tag
	Kind() Kind

	// IsPseudo reports whether the value is Unknown, Variable or NotApplicable
	IsPseudo() bool

	// String returns the DELTA coding form (e.g. "3", "1&2", "4-7", "U")
	String() string

	valueMarker()
}

// Integer is an integer scalar coding
type Integer int64

func (Integer) Kind() Kind       { return KindInteger }
func (Integer) IsPseudo() bool   { return false }
func (v Integer) String() string { return strconv.FormatInt(int64(v), 10) }
func (Integer) valueMarker()     {}

// Real is a real-number scalar coding
type Real float64

func (Real) Kind() Kind       { return KindReal }
func (Real) IsPseudo() bool   { return false }
func (v Real) String() string { return formatFloat(float64(v)) }
func (Real) valueMarker()     {}

// Text is a free-text coding
type Text string

func (Text) Kind() Kind       { return KindText }
func (Text) IsPseudo() bool   { return false }
func (v Text) String() string { return string(v) }
func (Text) valueMarker()     {}

// MultistateSet is one or more selected states. States are kept sorted and
// de-duplicated so two sets with the same members are interchangeable.
type MultistateSet struct {
	states []int
}

// NewMultistateSet builds a set from state numbers in any order
func NewMultistateSet(states ...int) MultistateSet {
	s := append([]int(nil), states...)
	sort.Ints(s)
	out := s[:0]
	for i, n := range s {
		if i == 0 || n != s[i-1] {
			out = append(out, n)
		}
	}
	return MultistateSet{states: out}
}

func (MultistateSet) Kind() Kind     { return KindMultistate }
func (MultistateSet) IsPseudo() bool { return false }
func (MultistateSet) valueMarker()   {}

func (v MultistateSet) String() string {
	parts := make([]string, len(v.states))
	for i, n := range v.states {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "&")
}

// States returns a copy of the member states in ascending order
func (v MultistateSet) States() []int {
	return append([]int(nil), v.states...)
}

// Len returns the number of member states
func (v MultistateSet) Len() int {
	return len(v.states)
}

// Contains reports membership of a single state
func (v MultistateSet) Contains(state int) bool {
	i := sort.SearchInts(v.states, state)
	return i < len(v.states) && v.states[i] == state
}

// Intersects reports whether the two sets share any state
func (v MultistateSet) Intersects(other MultistateSet) bool {
	i, j := 0, 0
	for i < len(v.states) && j < len(other.states) {
		switch {
		case v.states[i] == other.states[j]:
			return true
		case v.states[i] < other.states[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// Equal reports set equality
func (v MultistateSet) Equal(other MultistateSet) bool {
	if len(v.states) != len(other.states) {
		return false
	}
	for i := range v.states {
		if v.states[i] != other.states[i] {
			return false
		}
	}
	return true
}

// Range is a continuous interval coding, inclusive at both ends
type Range struct {
	Min float64
	Max float64
}

// NewRange orders the bounds so Min <= Max
func NewRange(a, b float64) Range {
	if a > b {
		a, b = b, a
	}
	return Range{Min: a, Max: b}
}

func (Range) Kind() Kind     { return KindRange }
func (Range) IsPseudo() bool { return false }
func (Range) valueMarker()   {}

func (v Range) String() string {
	return formatFloat(v.Min) + "-" + formatFloat(v.Max)
}

// Contains reports whether x lies within the range
func (v Range) Contains(x float64) bool {
	return x >= v.Min && x <= v.Max
}

// Overlaps reports whether the two ranges share any point
func (v Range) Overlaps(other Range) bool {
	return v.Min <= other.Max && v.Max >= other.Min
}

// Pseudo is one of the three pseudo-values
type Pseudo byte

const (
	Unknown       Pseudo = 'U'
	Variable      Pseudo = 'V'
	NotApplicable Pseudo = '-'
)

func (p Pseudo) Kind() Kind {
	switch p {
	case Unknown:
		return KindUnknown
	case Variable:
		return KindVariable
	}
	return KindNotApplicable
}

func (Pseudo) IsPseudo() bool   { return true }
func (p Pseudo) String() string { return string(rune(p)) }
func (Pseudo) valueMarker()     {}

// Key returns a canonical string used to compare values for distinctness.
// Integer and Real share a numeric key so 2 and 2.0 are one value.
func Key(v Value) string {
	switch x := v.(type) {
	case Integer:
		return "n:" + formatFloat(float64(x))
	case Real:
		return "n:" + formatFloat(float64(x))
	case Text:
		return "t:" + string(x)
	case MultistateSet:
		return "s:" + x.String()
	case Range:
		return "r:" + formatFloat(x.Min) + ":" + formatFloat(x.Max)
	case Pseudo:
		return "p:" + x.String()
	}
	return ""
}

// Numeric returns the scalar numeric value of Integer and Real codings
func Numeric(v Value) (float64, bool) {
	switch x := v.(type) {
	case Integer:
		return float64(x), true
	case Real:
		return float64(x), true
	}
	return 0, false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
