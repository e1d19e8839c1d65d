package storage

import (
	"context"
	"fmt"
)

// Stats summarises the stored matrix
type Stats struct {
	Characters       int            `json:"characters" yaml:"characters"`
	Items            int            `json:"items" yaml:"items"`
	Attributes       int            `json:"attributes" yaml:"attributes"`
	PseudoAttributes int            `json:"pseudo_attributes" yaml:"pseudo_attributes"`
	Dependencies     int            `json:"dependencies" yaml:"dependencies"`
	Sessions         int            `json:"sessions" yaml:"sessions"`
	CharacterTypes   map[string]int `json:"character_types" yaml:"character_types"`
}

// Stats counts rows per table and characters per type code
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{CharacterTypes: make(map[string]int)}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM characters`, &st.Characters},
		{`SELECT COUNT(*) FROM items`, &st.Items},
		{`SELECT COUNT(*) FROM item_character_attributes`, &st.Attributes},
		{`SELECT COUNT(*) FROM item_character_attributes
		  WHERE is_variable = 1 OR is_unknown = 1 OR is_not_applicable = 1`, &st.PseudoAttributes},
		{`SELECT COUNT(DISTINCT dependency_group) FROM character_dependencies`, &st.Dependencies},
		{`SELECT COUNT(*) FROM sessions`, &st.Sessions},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return st, fmt.Errorf("stats: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT character_type, COUNT(*) FROM characters GROUP BY character_type ORDER BY character_type`)
	if err != nil {
		return st, fmt.Errorf("stats by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return st, fmt.Errorf("scan type count: %w", err)
		}
		st.CharacterTypes[typ] = n
	}
	return st, rows.Err()
}
