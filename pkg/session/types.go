// ABOUTME: Identification session data model
// ABOUTME: Ordered selections, excluded characters and undo/reset

package session

import (
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/nainya/deltakey/pkg/delta"
	"github.com/nainya/deltakey/pkg/query"
)

var (
	// ErrNotFound indicates no session with the given id
	ErrNotFound = errors.New("session: not found")

	// ErrExists indicates a create for an id already in use
	ErrExists = errors.New("session: already exists")

	// ErrNothingToUndo indicates Undo on a session without selections
	ErrNothingToUndo = errors.New("session: nothing to undo")

	// ErrInvalidID indicates an empty session id
	ErrInvalidID = errors.New("session: invalid id")
)

// Selection is one filter the user has applied
type Selection struct {
	Character   int         // Character number
	Value       delta.Value // Chosen value
	Description string      // Human-readable form, e.g. "pronotum shape = 2. oval"
	AddedAt     time.Time   // When the selection was made
}

// Clause returns the selection as a filter clause
func (s Selection) Clause() query.Clause {
	return query.Clause{Character: s.Character, Value: s.Value}
}

// Session is one user's progress through an identification. It is not safe
// for concurrent use; the store hands out independent copies.
type Session struct {
	ID         string       // Unique session identifier
	Selections []Selection  // Applied filters in order
	Excluded   map[int]bool // Characters the user asked never to be proposed
	CreatedAt  time.Time    // Session start time
	UpdatedAt  time.Time    // Last modification time
}

// New creates an empty session. An empty id is replaced by a random UUID.
func New(id string) *Session {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Excluded:  make(map[int]bool),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddFilter appends a selection
func (s *Session) AddFilter(character int, v delta.Value, description string) {
	now := time.Now().UTC()
	s.Selections = append(s.Selections, Selection{
		Character:   character,
		Value:       v,
		Description: description,
		AddedAt:     now,
	})
	s.UpdatedAt = now
}

// Undo removes and returns the most recent selection
func (s *Session) Undo() (Selection, error) {
	if len(s.Selections) == 0 {
		return Selection{}, ErrNothingToUndo
	}
	last := s.Selections[len(s.Selections)-1]
	s.Selections = s.Selections[:len(s.Selections)-1]
	s.UpdatedAt = time.Now().UTC()
	return last, nil
}

// Reset clears selections and exclusions
func (s *Session) Reset() {
	s.Selections = nil
	s.Excluded = make(map[int]bool)
	s.UpdatedAt = time.Now().UTC()
}

// Exclude stops a character from being proposed in this session
func (s *Session) Exclude(character int) {
	if s.Excluded == nil {
		s.Excluded = make(map[int]bool)
	}
	s.Excluded[character] = true
	s.UpdatedAt = time.Now().UTC()
}

// Chain returns the selections as a filter chain
func (s *Session) Chain() query.Chain {
	chain := make(query.Chain, len(s.Selections))
	for i, sel := range s.Selections {
		chain[i] = sel.Clause()
	}
	return chain
}

// ExcludedNumbers returns the excluded characters in ascending order
func (s *Session) ExcludedNumbers() []int {
	out := make([]int, 0, len(s.Excluded))
	for n, ex := range s.Excluded {
		if ex {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := *s
	c.Selections = append([]Selection(nil), s.Selections...)
	c.Excluded = make(map[int]bool, len(s.Excluded))
	for n, ex := range s.Excluded {
		c.Excluded[n] = ex
	}
	return &c
}
