package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nainya/deltakey/pkg/delta"
)

const (
	charA = 1
	charB = 2
)

// smallMatrix is the four-item example: A is text, B is integer with one
// unknown coding.
func smallMatrix(t *testing.T) *delta.Matrix {
	t.Helper()
	chars := []*delta.Character{
		{Number: charA, Description: "colour", Type: delta.TypeText},
		{Number: charB, Description: "segments", Type: delta.TypeInteger},
	}
	items := []*delta.Item{
		{Number: 1, Name: "I1", Attributes: map[int]delta.Value{charA: delta.Text("red"), charB: delta.Integer(1)}},
		{Number: 2, Name: "I2", Attributes: map[int]delta.Value{charA: delta.Text("red"), charB: delta.Integer(2)}},
		{Number: 3, Name: "I3", Attributes: map[int]delta.Value{charA: delta.Text("blue"), charB: delta.Integer(3)}},
		{Number: 4, Name: "I4", Attributes: map[int]delta.Value{charA: delta.Text("blue"), charB: delta.Unknown}},
	}
	m, err := delta.NewMatrix(chars, items, nil)
	require.NoError(t, err)
	return m
}

const (
	charColour = 1
	charShape  = 3
	charLength = 4
	charSex    = 5
	charCount  = 6
	charSparse = 7
)

// beetleMatrix mixes text, multistate, real and range codings with
// pseudo-values, a mandatory and an omitted character.
func beetleMatrix(t *testing.T) *delta.Matrix {
	t.Helper()
	chars := []*delta.Character{
		{Number: charColour, Description: "elytra colour", Type: delta.TypeText},
		{Number: charShape, Description: "pronotum shape", Type: delta.TypeUnorderedMultistate,
			States: map[int]string{1: "round", 2: "oval", 3: "flat"}},
		{Number: charLength, Description: "body length", Type: delta.TypeReal, Units: "mm"},
		{Number: charSex, Description: "sex", Type: delta.TypeUnorderedMultistate, Mandatory: true,
			States: map[int]string{1: "male", 2: "female"}},
		{Number: charCount, Description: "specimens examined", Type: delta.TypeInteger, OmitFromKey: true},
		{Number: charSparse, Description: "antennal club", Type: delta.TypeUnorderedMultistate},
	}
	set := delta.NewMultistateSet
	items := []*delta.Item{
		{Number: 1, Name: "Alpha", Attributes: map[int]delta.Value{
			charColour: delta.Text("red"), charShape: set(1), charLength: delta.NewRange(2, 5),
			charSex: set(1), charCount: delta.Integer(1), charSparse: set(1)}},
		{Number: 2, Name: "Beta", Attributes: map[int]delta.Value{
			charColour: delta.Text("red"), charShape: set(1, 3), charLength: delta.Real(3.5),
			charSex: set(2), charCount: delta.Integer(2), charSparse: set(2)}},
		{Number: 3, Name: "Gamma", Attributes: map[int]delta.Value{
			charColour: delta.Text("blue"), charShape: set(2), charLength: delta.Real(9),
			charSex: set(1), charCount: delta.Integer(3), charSparse: delta.Unknown}},
		{Number: 4, Name: "Delta", Attributes: map[int]delta.Value{
			charColour: delta.Text("blue"), charShape: set(3), charLength: delta.NewRange(8, 12),
			charSex: set(2), charCount: delta.Integer(4), charSparse: delta.Unknown}},
		{Number: 5, Name: "Epsilon", Attributes: map[int]delta.Value{
			charColour: delta.Text("green"), charShape: delta.Variable, charLength: delta.NotApplicable,
			charSex: set(1), charCount: delta.Integer(5)}},
		{Number: 6, Name: "Zeta", Attributes: map[int]delta.Value{
			charColour: delta.Unknown, charShape: set(2), charLength: delta.Real(1),
			charSex: set(2), charCount: delta.Integer(6)}},
	}
	m, err := delta.NewMatrix(chars, items, nil)
	require.NoError(t, err)
	return m
}

func names(items []*delta.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func numbers(infos []CharacterInfo) []int {
	out := make([]int, len(infos))
	for i, c := range infos {
		out[i] = c.Number
	}
	return out
}
