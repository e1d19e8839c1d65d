// ABOUTME: SQLite-backed session persistence
// ABOUTME: Sessions are stored as JSON documents keyed by id

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/nainya/deltakey/pkg/delta"
)

// Store persists sessions in the sessions table of the matrix database
type Store struct {
	db *sql.DB
}

// NewStore creates a session store over an open database whose schema has
// been applied (see storage.Open).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type storedSelection struct {
	Character   int                `json:"character"`
	Value       delta.EncodedValue `json:"value"`
	Description string             `json:"description,omitempty"`
	AddedAt     time.Time          `json:"added_at"`
}

type storedState struct {
	Selections []storedSelection `json:"selections"`
	Excluded   []int             `json:"excluded,omitempty"`
}

func encodeState(s *Session) (string, error) {
	st := storedState{
		Selections: make([]storedSelection, len(s.Selections)),
		Excluded:   s.ExcludedNumbers(),
	}
	for i, sel := range s.Selections {
		st.Selections[i] = storedSelection{
			Character:   sel.Character,
			Value:       delta.Encode(sel.Value),
			Description: sel.Description,
			AddedAt:     sel.AddedAt,
		}
	}
	data, err := json.Marshal(st)
	if err != nil {
		return "", errors.Wrap(err, "encode session state")
	}
	return string(data), nil
}

func decodeState(s *Session, data string) error {
	var st storedState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return errors.Wrap(err, "decode session state")
	}
	s.Selections = make([]Selection, 0, len(st.Selections))
	for i, ss := range st.Selections {
		v, err := ss.Value.Decode()
		if err != nil {
			return errors.Wrapf(err, "selection %d", i+1)
		}
		s.Selections = append(s.Selections, Selection{
			Character:   ss.Character,
			Value:       v,
			Description: ss.Description,
			AddedAt:     ss.AddedAt,
		})
	}
	s.Excluded = make(map[int]bool, len(st.Excluded))
	for _, n := range st.Excluded {
		s.Excluded[n] = true
	}
	return nil
}

// Create stores a new empty session. An empty id is replaced by a UUID.
func (st *Store) Create(ctx context.Context, id string) (*Session, error) {
	s := New(id)
	state, err := encodeState(s)
	if err != nil {
		return nil, err
	}

	res, err := st.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (session_id, state, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		s.ID, state, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return nil, errors.Wrapf(err, "create session %s", s.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.Wrapf(ErrExists, "session %s", s.ID)
	}
	return s, nil
}

// Get loads a session by id
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidID
	}

	var state, created, updated string
	err := st.db.QueryRowContext(ctx,
		`SELECT state, created_at, updated_at FROM sessions WHERE session_id = ?`, id,
	).Scan(&state, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get session %s", id)
	}

	s := &Session{ID: id}
	s.CreatedAt, _ = time.Parse(timeLayout, created)
	s.UpdatedAt, _ = time.Parse(timeLayout, updated)
	if err := decodeState(s, state); err != nil {
		return nil, errors.Wrapf(err, "session %s", id)
	}
	return s, nil
}

// GetOrCreate loads a session, creating it when absent
func (st *Store) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	s, err := st.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s, err = st.Create(ctx, id)
		if errors.Is(err, ErrExists) {
			return st.Get(ctx, id)
		}
	}
	return s, err
}

// Save writes a session, inserting or replacing it
func (st *Store) Save(ctx context.Context, s *Session) error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrInvalidID
	}
	state, err := encodeState(s)
	if err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	_, err = st.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, state, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		s.ID, state, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return errors.Wrapf(err, "save session %s", s.ID)
	}
	return nil
}

// Delete removes a session
func (st *Store) Delete(ctx context.Context, id string) error {
	res, err := st.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete session %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

// Summary is a lightweight listing entry
type Summary struct {
	ID         string    `json:"id"`
	Selections int       `json:"selections"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// List returns all sessions, most recently updated first
func (st *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT session_id, state, created_at, updated_at FROM sessions ORDER BY updated_at DESC, session_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var id, state, created, updated string
		if err := rows.Scan(&id, &state, &created, &updated); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		var doc storedState
		if err := json.Unmarshal([]byte(state), &doc); err != nil {
			return nil, errors.Wrapf(err, "decode session %s", id)
		}
		sum := Summary{ID: id, Selections: len(doc.Selections)}
		sum.CreatedAt, _ = time.Parse(timeLayout, created)
		sum.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Count returns the number of stored sessions
func (st *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count sessions")
	}
	return n, nil
}

// timeLayout has fixed-width fractions so stored times sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
