package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoding(t *testing.T) {
	tests := []struct {
		raw  string
		want Value
	}{
		{"U", Unknown},
		{"V", Variable},
		{"-", NotApplicable},
		{" 4 ", Integer(4)},
		{"-2", Integer(-2)},
		{"3.5", Real(3.5)},
		{".5", Real(0.5)},
		{"4-7", NewRange(4, 7)},
		{"1.5 - 2.5", NewRange(1.5, 2.5)},
		{"1&3", NewMultistateSet(1, 3)},
		{"3/1", NewMultistateSet(1, 3)},
		{"pale brown", Text("pale brown")},
		{"1&x", Text("1&x")},
	}
	for _, tt := range tests {
		got, err := ParseCoding(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := ParseCoding("   ")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestCoerce(t *testing.T) {
	multi := &Character{Number: 1, Type: TypeUnorderedMultistate}
	realChar := &Character{Number: 2, Type: TypeReal}
	integer := &Character{Number: 3, Type: TypeInteger}
	text := &Character{Number: 4, Type: TypeText}

	assert.Equal(t, NewMultistateSet(2), Coerce(multi, Integer(2)))
	assert.Equal(t, NewMultistateSet(2, 3, 4), Coerce(multi, NewRange(2, 4)))
	assert.Equal(t, Real(5), Coerce(realChar, Integer(5)))
	assert.Equal(t, Integer(5), Coerce(integer, Real(5)))
	assert.Equal(t, Real(5.5), Coerce(integer, Real(5.5)))
	assert.Equal(t, Text("12"), Coerce(text, Integer(12)))
	assert.Equal(t, Unknown, Coerce(text, Unknown))
}

func TestParseValue(t *testing.T) {
	shape := &Character{Number: 3, Type: TypeOrderedMultistate,
		States: map[int]string{1: "round", 2: "oval", 3: "flat"}}
	length := &Character{Number: 4, Type: TypeReal}
	colour := &Character{Number: 1, Type: TypeText}

	v, err := ParseValue(shape, "2")
	require.NoError(t, err)
	assert.Equal(t, NewMultistateSet(2), v)

	v, err = ParseValue(shape, "1&3")
	require.NoError(t, err)
	assert.Equal(t, NewMultistateSet(1, 3), v)

	v, err = ParseValue(shape, "1-2")
	require.NoError(t, err)
	assert.Equal(t, NewMultistateSet(1, 2), v)

	v, err = ParseValue(length, "4")
	require.NoError(t, err)
	assert.Equal(t, Real(4), v)

	v, err = ParseValue(length, "3-5")
	require.NoError(t, err)
	assert.Equal(t, NewRange(3, 5), v)

	v, err = ParseValue(colour, " 12 ")
	require.NoError(t, err)
	assert.Equal(t, Text("12"), v)

	v, err = ParseValue(length, "U")
	require.NoError(t, err)
	assert.True(t, v.IsPseudo())
}

func TestParseValueErrors(t *testing.T) {
	shape := &Character{Number: 3, Type: TypeUnorderedMultistate,
		States: map[int]string{1: "round", 2: "oval"}}
	length := &Character{Number: 4, Type: TypeInteger}

	for _, tc := range []struct {
		c   *Character
		raw string
	}{
		{shape, "round"},
		{shape, "5"},
		{length, "long"},
		{length, ""},
		{nil, "1"},
		{&Character{Type: TypeText}, "  "},
	} {
		_, err := ParseValue(tc.c, tc.raw)
		assert.ErrorIs(t, err, ErrInvalidValue, "%q", tc.raw)
	}
}
