// ABOUTME: SQLite persistence for the DELTA matrix
// ABOUTME: Replace-all save, full load and summary statistics

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nainya/deltakey/pkg/delta"
)

// ErrNoMatrix is returned by LoadMatrix when nothing has been ingested
var ErrNoMatrix = errors.New("storage: no matrix ingested")

// Store owns the SQLite database holding the matrix and sessions
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger attaches a logger for database operations
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l.With().Str("component", "storage").Logger()
	}
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite serialises writers; one connection also keeps an in-memory
	// database alive and shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s.log.Debug().Str("path", path).Msg("database opened")
	return s, nil
}

// DB exposes the underlying handle for stores sharing the database
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveMatrix replaces the stored matrix in a single transaction. Sessions
// are left untouched.
func (s *Store) SaveMatrix(ctx context.Context, m *delta.Matrix) (err error) {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{
		"item_character_attributes", "items", "character_dependencies",
		"character_states", "characters",
	} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err = insertCharacters(ctx, tx, m.Characters()); err != nil {
		return err
	}
	if err = insertDependencies(ctx, tx, m.Dependencies()); err != nil {
		return err
	}
	if err = insertItems(ctx, tx, m); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.log.Info().
		Int("characters", len(m.Characters())).
		Int("items", len(m.Items())).
		Dur("duration", time.Since(start)).
		Msg("matrix saved")
	return nil
}

func insertCharacters(ctx context.Context, tx *sql.Tx, chars []*delta.Character) error {
	charStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO characters
		 (character_number, character_type, feature_description, units, implicit_value, mandatory, omit_from_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare characters: %w", err)
	}
	defer charStmt.Close()

	stateStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO character_states (character_number, state_number, state_description) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare states: %w", err)
	}
	defer stateStmt.Close()

	for _, c := range chars {
		var implicit sql.NullInt64
		if c.ImplicitValue != nil {
			implicit = sql.NullInt64{Int64: int64(*c.ImplicitValue), Valid: true}
		}
		if _, err := charStmt.ExecContext(ctx,
			c.Number, string(c.Type), c.Description, nullString(c.Units),
			implicit, c.Mandatory, c.OmitFromKey,
		); err != nil {
			return fmt.Errorf("insert character %d: %w", c.Number, err)
		}
		for _, n := range c.StateNumbers() {
			if _, err := stateStmt.ExecContext(ctx, c.Number, n, c.States[n]); err != nil {
				return fmt.Errorf("insert state %d of character %d: %w", n, c.Number, err)
			}
		}
	}
	return nil
}

func insertDependencies(ctx context.Context, tx *sql.Tx, deps []delta.Dependency) error {
	for group, d := range deps {
		states, err := json.Marshal(d.States)
		if err != nil {
			return fmt.Errorf("encode dependency states: %w", err)
		}
		for _, dep := range d.Dependents {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO character_dependencies
				 (dependency_group, parent_character_number, parent_states, dependent_character_number)
				 VALUES (?, ?, ?, ?)`,
				group, d.Parent, string(states), dep,
			); err != nil {
				return fmt.Errorf("insert dependency of character %d: %w", d.Parent, err)
			}
		}
	}
	return nil
}

func insertItems(ctx context.Context, tx *sql.Tx, m *delta.Matrix) error {
	itemStmt, err := tx.PrepareContext(ctx, `INSERT INTO items (item_number, item_name) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare items: %w", err)
	}
	defer itemStmt.Close()

	attrStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO item_character_attributes
		 (item_number, character_number, value_kind, integer_value, real_value, text_value,
		  state_values, range_min, range_max, is_variable, is_unknown, is_not_applicable)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare attributes: %w", err)
	}
	defer attrStmt.Close()

	for _, it := range m.Items() {
		if _, err := itemStmt.ExecContext(ctx, it.Number, it.Name); err != nil {
			return fmt.Errorf("insert item %d: %w", it.Number, err)
		}

		chars := make([]int, 0, len(it.Attributes))
		for n := range it.Attributes {
			chars = append(chars, n)
		}
		sort.Ints(chars)

		for _, n := range chars {
			if _, ok := m.Character(n); !ok {
				continue
			}
			row, err := encodeAttribute(it.Attributes[n])
			if err != nil {
				return fmt.Errorf("item %d character %d: %w", it.Number, n, err)
			}
			args := append([]any{it.Number, n}, row.args()...)
			if _, err := attrStmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert coding %d/%d: %w", it.Number, n, err)
			}
		}
	}
	return nil
}

// LoadMatrix reads the stored matrix. It returns ErrNoMatrix when no
// characters have been saved.
func (s *Store) LoadMatrix(ctx context.Context) (*delta.Matrix, error) {
	start := time.Now()

	chars, err := s.loadCharacters(ctx)
	if err != nil {
		return nil, err
	}
	if len(chars) == 0 {
		return nil, ErrNoMatrix
	}

	deps, err := s.loadDependencies(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.loadItems(ctx)
	if err != nil {
		return nil, err
	}

	m, err := delta.NewMatrix(chars, items, deps)
	if err != nil {
		return nil, fmt.Errorf("build matrix: %w", err)
	}

	s.log.Debug().
		Int("characters", len(chars)).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("matrix loaded")
	return m, nil
}

func (s *Store) loadCharacters(ctx context.Context) ([]*delta.Character, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT character_number, character_type, feature_description, units, implicit_value, mandatory, omit_from_key
		 FROM characters ORDER BY character_number`)
	if err != nil {
		return nil, fmt.Errorf("query characters: %w", err)
	}
	defer rows.Close()

	var chars []*delta.Character
	byNumber := make(map[int]*delta.Character)
	for rows.Next() {
		var (
			c        delta.Character
			typ      string
			units    sql.NullString
			implicit sql.NullInt64
		)
		if err := rows.Scan(&c.Number, &typ, &c.Description, &units, &implicit, &c.Mandatory, &c.OmitFromKey); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		c.Type = delta.CharacterType(typ)
		c.Units = units.String
		if implicit.Valid {
			v := int(implicit.Int64)
			c.ImplicitValue = &v
		}
		chars = append(chars, &c)
		byNumber[c.Number] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stateRows, err := s.db.QueryContext(ctx,
		`SELECT character_number, state_number, state_description FROM character_states`)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer stateRows.Close()

	for stateRows.Next() {
		var charNum, stateNum int
		var desc string
		if err := stateRows.Scan(&charNum, &stateNum, &desc); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		c, ok := byNumber[charNum]
		if !ok {
			continue
		}
		if c.States == nil {
			c.States = make(map[int]string)
		}
		c.States[stateNum] = desc
	}
	return chars, stateRows.Err()
}

func (s *Store) loadDependencies(ctx context.Context) ([]delta.Dependency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dependency_group, parent_character_number, parent_states, dependent_character_number
		 FROM character_dependencies ORDER BY dependency_group, id`)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer rows.Close()

	var (
		deps      []delta.Dependency
		lastGroup = -1
	)
	for rows.Next() {
		var group, parent, dependent int
		var states string
		if err := rows.Scan(&group, &parent, &states, &dependent); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		if group != lastGroup {
			d := delta.Dependency{Parent: parent}
			if err := json.Unmarshal([]byte(states), &d.States); err != nil {
				return nil, fmt.Errorf("decode dependency states: %w", err)
			}
			deps = append(deps, d)
			lastGroup = group
		}
		last := &deps[len(deps)-1]
		last.Dependents = append(last.Dependents, dependent)
	}
	return deps, rows.Err()
}

func (s *Store) loadItems(ctx context.Context) ([]*delta.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_number, item_name FROM items ORDER BY item_number`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*delta.Item
	byNumber := make(map[int]*delta.Item)
	for rows.Next() {
		it := &delta.Item{Attributes: make(map[int]delta.Value)}
		if err := rows.Scan(&it.Number, &it.Name); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
		byNumber[it.Number] = it
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	attrRows, err := s.db.QueryContext(ctx,
		`SELECT item_number, character_number, value_kind, integer_value, real_value, text_value,
		        state_values, range_min, range_max, is_variable, is_unknown, is_not_applicable
		 FROM item_character_attributes`)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer attrRows.Close()

	for attrRows.Next() {
		var (
			itemNum, charNum int
			kind             string
			r                attributeRow
		)
		if err := attrRows.Scan(&itemNum, &charNum, &kind, &r.integer, &r.real, &r.text,
			&r.states, &r.rangeMin, &r.rangeMax, &r.variable, &r.unknown, &r.notApplicable); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		r.kind = delta.Kind(kind)
		v, err := r.value()
		if err != nil {
			return nil, fmt.Errorf("item %d character %d: %w", itemNum, charNum, err)
		}
		if it, ok := byNumber[itemNum]; ok {
			it.Attributes[charNum] = v
		}
	}
	return items, attrRows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
