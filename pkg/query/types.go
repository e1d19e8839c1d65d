// ABOUTME: Query engine types for progressive identification
// ABOUTME: Filter clauses, ranked characters, proposals and key steps

package query

import (
	"github.com/nainya/deltakey/pkg/delta"
)

// Clause restricts survivors to items whose coding for Character matches Value
type Clause struct {
	Character int
	Value     delta.Value
}

// Chain is an ordered sequence of clauses applied left to right
type Chain []Clause

// Characters returns the set of characters used by the chain
func (c Chain) Characters() map[int]bool {
	used := make(map[int]bool, len(c))
	for _, cl := range c {
		used[cl.Character] = true
	}
	return used
}

// With returns a new chain with the clause appended, leaving c untouched
func (c Chain) With(cl Clause) Chain {
	out := make(Chain, len(c), len(c)+1)
	copy(out, c)
	return append(out, cl)
}

// CharacterInfo describes a character's discriminating power over an item set
type CharacterInfo struct {
	Number             int
	Description        string
	Type               delta.CharacterType
	DistinctValues     int
	CodingCompleteness float64
	SelectivityScore   float64
}

// ValueCount is one entry of a character's value histogram
type ValueCount struct {
	Value delta.Value
	Label string
	Count int
}

// ProposalStatus distinguishes a usable proposal from a terminal one
type ProposalStatus int

const (
	ProposalFound ProposalStatus = iota
	NoCandidates
)

func (s ProposalStatus) String() string {
	if s == NoCandidates {
		return "no_candidates"
	}
	return "success"
}

// Proposal is the result of ProposeNext
type Proposal struct {
	Status        ProposalStatus
	Character     CharacterInfo   // Top candidate (zero when NoCandidates)
	Values        []ValueCount    // Histogram of Character over survivors
	Candidates    []CharacterInfo // All remaining candidates, best first
	Survivors     []*delta.Item
	SurvivorCount int
}

// Step is one recorded step of a generated key
type Step struct {
	Number        int
	Character     CharacterInfo
	Values        []ValueCount
	SurvivorCount int         // Survivors before the choice
	Chosen        delta.Value // Value appended to the chain
	ChosenLabel   string
	Remaining     int // Survivors after the choice
}

// ValueChooser picks the value to follow at a key step. Returning ok=false
// ends key generation.
type ValueChooser func(step int, p *Proposal) (v ValueCount, ok bool, err error)

// FirstValue follows the most common value at every step
func FirstValue(_ int, p *Proposal) (ValueCount, bool, error) {
	if len(p.Values) == 0 {
		return ValueCount{}, false, nil
	}
	return p.Values[0], true, nil
}

// ChainBuilder provides a fluent interface for building chains
type ChainBuilder struct {
	chain Chain
}

// NewChainBuilder creates an empty chain builder
func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{}
}

// Where appends a clause
func (b *ChainBuilder) Where(character int, value delta.Value) *ChainBuilder {
	b.chain = append(b.chain, Clause{Character: character, Value: value})
	return b
}

// Build returns the constructed chain
func (b *ChainBuilder) Build() Chain {
	return append(Chain(nil), b.chain...)
}
