// ABOUTME: JSON-friendly encoding of typed values
// ABOUTME: Used by session persistence and the API layers

package delta

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// EncodedValue is the serialized form of a Value
type EncodedValue struct {
	Kind   Kind     `json:"kind" yaml:"kind"`
	Int    *int64   `json:"int,omitempty" yaml:"int,omitempty"`
	Real   *float64 `json:"real,omitempty" yaml:"real,omitempty"`
	Text   *string  `json:"text,omitempty" yaml:"text,omitempty"`
	States []int    `json:"states,omitempty" yaml:"states,omitempty"`
	Min    *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Encode converts a Value to its serialized form
func Encode(v Value) EncodedValue {
	switch x := v.(type) {
	case Integer:
		n := int64(x)
		return EncodedValue{Kind: KindInteger, Int: &n}
	case Real:
		f := float64(x)
		return EncodedValue{Kind: KindReal, Real: &f}
	case Text:
		s := string(x)
		return EncodedValue{Kind: KindText, Text: &s}
	case MultistateSet:
		return EncodedValue{Kind: KindMultistate, States: x.States()}
	case Range:
		lo, hi := x.Min, x.Max
		return EncodedValue{Kind: KindRange, Min: &lo, Max: &hi}
	case Pseudo:
		return EncodedValue{Kind: x.Kind()}
	}
	return EncodedValue{}
}

// Decode converts the serialized form back into a Value
func (e EncodedValue) Decode() (Value, error) {
	switch e.Kind {
	case KindInteger:
		if e.Int == nil {
			return nil, errors.Wrap(ErrInvalidValue, "integer without int field")
		}
		return Integer(*e.Int), nil
	case KindReal:
		if e.Real == nil {
			return nil, errors.Wrap(ErrInvalidValue, "real without real field")
		}
		return Real(*e.Real), nil
	case KindText:
		if e.Text == nil {
			return nil, errors.Wrap(ErrInvalidValue, "text without text field")
		}
		return Text(*e.Text), nil
	case KindMultistate:
		if len(e.States) == 0 {
			return nil, errors.Wrap(ErrInvalidValue, "multistate without states")
		}
		return NewMultistateSet(e.States...), nil
	case KindRange:
		if e.Min == nil || e.Max == nil {
			return nil, errors.Wrap(ErrInvalidValue, "range without bounds")
		}
		return NewRange(*e.Min, *e.Max), nil
	case KindUnknown:
		return Unknown, nil
	case KindVariable:
		return Variable, nil
	case KindNotApplicable:
		return NotApplicable, nil
	}
	return nil, errors.Wrapf(ErrInvalidValue, "unknown value kind %q", e.Kind)
}

// MarshalValue encodes a Value as JSON
func MarshalValue(v Value) ([]byte, error) {
	return json.Marshal(Encode(v))
}

// UnmarshalValue decodes a Value from JSON produced by MarshalValue
func UnmarshalValue(data []byte) (Value, error) {
	var e EncodedValue
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "decode value")
	}
	return e.Decode()
}
