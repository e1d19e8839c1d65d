// ABOUTME: DELTA character/item matrix data model
// ABOUTME: Characters, items and the immutable matrix the query engine reads

package delta

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// CharacterType is the DELTA character type code
type CharacterType string

const (
	TypeText                CharacterType = "TE"
	TypeInteger             CharacterType = "IN"
	TypeReal                CharacterType = "RN"
	TypeUnorderedMultistate CharacterType = "UM"
	TypeOrderedMultistate   CharacterType = "OM"
)

// IsMultistate reports whether the type carries numbered states
func (t CharacterType) IsMultistate() bool {
	return t == TypeUnorderedMultistate || t == TypeOrderedMultistate
}

// IsNumeric reports whether the type is Integer or Real
func (t CharacterType) IsNumeric() bool {
	return t == TypeInteger || t == TypeReal
}

// Valid reports whether t is one of the five DELTA types
func (t CharacterType) Valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeReal, TypeUnorderedMultistate, TypeOrderedMultistate:
		return true
	}
	return false
}

// Name returns the long form used in statistics output
func (t CharacterType) Name() string {
	switch t {
	case TypeText:
		return "Text"
	case TypeInteger:
		return "Integer"
	case TypeReal:
		return "Real number"
	case TypeUnorderedMultistate:
		return "Unordered multistate"
	case TypeOrderedMultistate:
		return "Ordered multistate"
	}
	return string(t)
}

// Character is a scored feature used to distinguish items
type Character struct {
	Number        int            // Stable identity
	Description   string         // Feature description
	Type          CharacterType  // DELTA type code
	Units         string         // Units for numeric characters
	States        map[int]string // State number -> description (multistate only)
	Mandatory     bool           // Never proposed
	OmitFromKey   bool           // Never proposed
	ImplicitValue *int           // Default state, if declared
}

// StateNumbers returns the declared state numbers in ascending order
func (c *Character) StateNumbers() []int {
	nums := make([]int, 0, len(c.States))
	for n := range c.States {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Item is an organism or taxon being identified
type Item struct {
	Number     int           // Stable identity
	Name       string        // Taxon name
	Attributes map[int]Value // Character number -> coding
}

// Attribute returns the coding for a character and whether one exists
func (it *Item) Attribute(character int) (Value, bool) {
	v, ok := it.Attributes[character]
	return v, ok
}

// Dependency records that a set of characters only applies when the
// parent character takes one of the given states
type Dependency struct {
	Parent     int
	States     []int
	Dependents []int
}

// Matrix errors
var (
	ErrDuplicateCharacter = errors.New("duplicate character number")
	ErrDuplicateItem      = errors.New("duplicate item number")
	ErrInvalidCharacter   = errors.New("invalid character")
	ErrInvalidItem        = errors.New("invalid item")
)

// Matrix is the read-only character/item collection. It is safe for
// concurrent readers once built.
type Matrix struct {
	characters   map[int]*Character
	charOrder    []*Character
	items        []*Item
	itemIndex    map[int]*Item
	dependencies []Dependency
}

// NewMatrix validates and indexes characters and items. The items are
// indexed as given and are not modified.
func NewMatrix(characters []*Character, items []*Item, deps []Dependency) (*Matrix, error) {
	m := &Matrix{
		characters:   make(map[int]*Character, len(characters)),
		itemIndex:    make(map[int]*Item, len(items)),
		dependencies: append([]Dependency(nil), deps...),
	}

	for _, c := range characters {
		if c == nil {
			return nil, errors.Wrap(ErrInvalidCharacter, "nil character")
		}
		if !c.Type.Valid() {
			return nil, errors.Wrapf(ErrInvalidCharacter, "character %d has type %q", c.Number, c.Type)
		}
		if _, dup := m.characters[c.Number]; dup {
			return nil, errors.Wrapf(ErrDuplicateCharacter, "character %d", c.Number)
		}
		m.characters[c.Number] = c
		m.charOrder = append(m.charOrder, c)
	}
	sort.Slice(m.charOrder, func(i, j int) bool {
		return m.charOrder[i].Number < m.charOrder[j].Number
	})

	for _, it := range items {
		if it == nil {
			return nil, errors.Wrap(ErrInvalidItem, "nil item")
		}
		if _, dup := m.itemIndex[it.Number]; dup {
			return nil, errors.Wrapf(ErrDuplicateItem, "item %d (%s)", it.Number, it.Name)
		}
		for char, v := range it.Attributes {
			if v == nil {
				return nil, errors.Wrapf(ErrInvalidItem, "item %d has a nil value for character %d", it.Number, char)
			}
		}
		m.itemIndex[it.Number] = it
		m.items = append(m.items, it)
	}
	sort.Slice(m.items, func(i, j int) bool {
		return m.items[i].Number < m.items[j].Number
	})

	return m, nil
}

// Characters returns all characters in ascending number order
func (m *Matrix) Characters() []*Character {
	return m.charOrder
}

// Character looks up a character by number
func (m *Matrix) Character(number int) (*Character, bool) {
	c, ok := m.characters[number]
	return c, ok
}

// Items returns all items in ascending number order
func (m *Matrix) Items() []*Item {
	return m.items
}

// Item looks up an item by number
func (m *Matrix) Item(number int) (*Item, bool) {
	it, ok := m.itemIndex[number]
	return it, ok
}

// Dependencies returns the declared character dependencies
func (m *Matrix) Dependencies() []Dependency {
	return m.dependencies
}

// DependentsOf returns the characters controlled by a parent character
func (m *Matrix) DependentsOf(parent int) []Dependency {
	var out []Dependency
	for _, d := range m.dependencies {
		if d.Parent == parent {
			out = append(out, d)
		}
	}
	return out
}
