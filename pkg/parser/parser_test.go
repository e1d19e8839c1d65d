package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/deltakey/pkg/delta"
)

const testChars = `*SHOW: Ground beetles
#1. <elytra colour>/
#2. pronotum shape <dorsal view>/
   1. round/
   2. oval <rarely angular>/
   3. flat/
#3. body length/ mm/
#4. antennal segments/
#5. sex/ 1. male/ 2. female/
`

const testSpecs = `*NUMBER OF CHARACTERS 5
*MAXIMUM NUMBER OF STATES 3
*CHARACTER TYPES 1,TE 3,RN
  4,IN
*IMPLICIT VALUES 2,1
*MANDATORY CHARACTERS 5
*OMIT FROM KEY 4
*DEPENDENT CHARACTERS 2,1/3:3:4
`

const testItems = `*ITEM DESCRIPTIONS
# Carabus nemoralis <Mueller>/
  1<metallic bronze> 2,1/3 3,20-26 4,11 5,1
# Pterostichus niger/
  1<black> 2,2 3,16.5 4,U 5,V
# Amara aenea/ 1<bronze> 2,- 3,7 5,2
`

func parse(t *testing.T, chars, specs, items string) *delta.Matrix {
	t.Helper()
	p := New()
	require.NoError(t, p.ParseCharacters(strings.NewReader(chars)))
	if specs != "" {
		require.NoError(t, p.ParseSpecs(strings.NewReader(specs)))
	}
	require.NoError(t, p.ParseItems(strings.NewReader(items)))
	m, err := p.Matrix()
	require.NoError(t, err)
	return m
}

func TestParseCharacters(t *testing.T) {
	m := parse(t, testChars, testSpecs, testItems)
	require.Len(t, m.Characters(), 5)

	c, _ := m.Character(1)
	assert.Equal(t, "elytra colour", c.Description)
	assert.Equal(t, delta.TypeText, c.Type)
	assert.Empty(t, c.States)

	c, _ = m.Character(2)
	assert.Equal(t, "pronotum shape", c.Description)
	assert.Equal(t, delta.TypeUnorderedMultistate, c.Type)
	assert.Equal(t, map[int]string{1: "round", 2: "oval", 3: "flat"}, c.States)
	require.NotNil(t, c.ImplicitValue)
	assert.Equal(t, 1, *c.ImplicitValue)

	c, _ = m.Character(3)
	assert.Equal(t, delta.TypeReal, c.Type)
	assert.Equal(t, "mm", c.Units)

	c, _ = m.Character(4)
	assert.Equal(t, delta.TypeInteger, c.Type)
	assert.True(t, c.OmitFromKey)

	c, _ = m.Character(5)
	assert.True(t, c.Mandatory)
	assert.Equal(t, map[int]string{1: "male", 2: "female"}, c.States)
}

func TestParseDependencies(t *testing.T) {
	m := parse(t, testChars, testSpecs, testItems)
	require.Len(t, m.Dependencies(), 1)
	assert.Equal(t, delta.Dependency{Parent: 2, States: []int{1, 3}, Dependents: []int{3, 4}}, m.Dependencies()[0])
}

func TestParseItems(t *testing.T) {
	m := parse(t, testChars, testSpecs, testItems)
	require.Len(t, m.Items(), 3)

	carabus, ok := m.Item(1)
	require.True(t, ok)
	assert.Equal(t, "Carabus nemoralis", carabus.Name)
	assert.Equal(t, delta.Text("metallic bronze"), carabus.Attributes[1])
	assert.Equal(t, delta.NewMultistateSet(1, 3), carabus.Attributes[2])
	assert.Equal(t, delta.NewRange(20, 26), carabus.Attributes[3])
	assert.Equal(t, delta.Integer(11), carabus.Attributes[4])
	assert.Equal(t, delta.NewMultistateSet(1), carabus.Attributes[5])

	niger, _ := m.Item(2)
	assert.Equal(t, delta.Real(16.5), niger.Attributes[3])
	assert.Equal(t, delta.Unknown, niger.Attributes[4])
	assert.Equal(t, delta.Variable, niger.Attributes[5])

	amara, _ := m.Item(3)
	assert.Equal(t, "Amara aenea", amara.Name)
	assert.Equal(t, delta.NotApplicable, amara.Attributes[2])
	assert.Equal(t, delta.Real(7), amara.Attributes[3])
	_, coded := amara.Attribute(4)
	assert.False(t, coded)
}

func TestParseWithoutSpecsDefaultsToMultistate(t *testing.T) {
	m := parse(t, testChars, "", testItems)
	c, _ := m.Character(4)
	assert.Equal(t, delta.TypeUnorderedMultistate, c.Type)

	carabus, _ := m.Item(1)
	assert.Equal(t, delta.NewMultistateSet(11), carabus.Attributes[4])
}

func TestParseSkipsUndefinedCharacters(t *testing.T) {
	m := parse(t, testChars, testSpecs, "# Odd beetle/ 1<red> 99,4\n")
	it, _ := m.Item(1)
	assert.Len(t, it.Attributes, 1)
}

func TestParseErrors(t *testing.T) {
	_, err := New().Matrix()
	assert.ErrorIs(t, err, ErrNoCharacters)

	err = New().ParseCharacters(strings.NewReader("#x. bad/\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	err = New().ParseCharacters(strings.NewReader("#1. a/\n#1. b/\n"))
	assert.ErrorIs(t, err, delta.ErrDuplicateCharacter)

	err = New().ParseSpecs(strings.NewReader("*CHARACTER TYPES 1,XX\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	err = New().ParseSpecs(strings.NewReader("*MANDATORY CHARACTERS 5-2\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	err = New().ParseItems(strings.NewReader("# no terminator\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	err = New().ParseItems(strings.NewReader("# Beetle/ x,1\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CharsFile), []byte(testChars), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ItemsFile), []byte(testItems), 0o644))

	m, err := ParseDir(dir)
	require.NoError(t, err)
	assert.Len(t, m.Items(), 3)

	require.NoError(t, os.WriteFile(filepath.Join(dir, SpecsFile), []byte(testSpecs), 0o644))
	m, err = ParseDir(dir)
	require.NoError(t, err)
	c, _ := m.Character(3)
	assert.Equal(t, delta.TypeReal, c.Type)

	_, err = ParseDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLexHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", " b<c/d>", ""}, splitOutside("a/ b<c/d>/", isSlash))
	assert.Equal(t, "keep  this", stripComments("keep <drop <nested>> this"))
	assert.Equal(t, "whole thing", cleanText("<whole thing>"))
	assert.Equal(t, "b", cleanText("<a> b <x>"))

	span, err := parseSpan("3-5")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, span)

	name, body := splitDirective("CHARACTER TYPES 1,TE")
	assert.Equal(t, "CHARACTER TYPES", name)
	assert.Equal(t, "1,TE", body)
}
