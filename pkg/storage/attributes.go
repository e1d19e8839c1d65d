package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nainya/deltakey/pkg/delta"
)

// attributeRow is the column form of one item coding. Exactly one value
// column (or pseudo flag) is set, matching kind.
type attributeRow struct {
	kind          delta.Kind
	integer       sql.NullInt64
	real          sql.NullFloat64
	text          sql.NullString
	states        sql.NullString
	rangeMin      sql.NullFloat64
	rangeMax      sql.NullFloat64
	variable      bool
	unknown       bool
	notApplicable bool
}

func encodeAttribute(v delta.Value) (attributeRow, error) {
	row := attributeRow{kind: v.Kind()}

	switch x := v.(type) {
	case delta.Integer:
		row.integer = sql.NullInt64{Int64: int64(x), Valid: true}
	case delta.Real:
		row.real = sql.NullFloat64{Float64: float64(x), Valid: true}
	case delta.Text:
		row.text = sql.NullString{String: string(x), Valid: true}
	case delta.MultistateSet:
		data, err := json.Marshal(x.States())
		if err != nil {
			return row, fmt.Errorf("encode states: %w", err)
		}
		row.states = sql.NullString{String: string(data), Valid: true}
	case delta.Range:
		row.rangeMin = sql.NullFloat64{Float64: x.Min, Valid: true}
		row.rangeMax = sql.NullFloat64{Float64: x.Max, Valid: true}
	case delta.Pseudo:
		row.variable = x == delta.Variable
		row.unknown = x == delta.Unknown
		row.notApplicable = x == delta.NotApplicable
	default:
		return row, fmt.Errorf("encode attribute: unsupported value %T", v)
	}
	return row, nil
}

func (r attributeRow) value() (delta.Value, error) {
	switch {
	case r.unknown:
		return delta.Unknown, nil
	case r.variable:
		return delta.Variable, nil
	case r.notApplicable:
		return delta.NotApplicable, nil
	}

	switch r.kind {
	case delta.KindInteger:
		if r.integer.Valid {
			return delta.Integer(r.integer.Int64), nil
		}
	case delta.KindReal:
		if r.real.Valid {
			return delta.Real(r.real.Float64), nil
		}
	case delta.KindText:
		if r.text.Valid {
			return delta.Text(r.text.String), nil
		}
	case delta.KindMultistate:
		if r.states.Valid {
			var states []int
			if err := json.Unmarshal([]byte(r.states.String), &states); err != nil {
				return nil, fmt.Errorf("decode states %q: %w", r.states.String, err)
			}
			if len(states) > 0 {
				return delta.NewMultistateSet(states...), nil
			}
		}
	case delta.KindRange:
		if r.rangeMin.Valid && r.rangeMax.Valid {
			return delta.NewRange(r.rangeMin.Float64, r.rangeMax.Float64), nil
		}
	}
	return nil, fmt.Errorf("attribute of kind %q has no value column", r.kind)
}

func (r attributeRow) args() []any {
	return []any{
		string(r.kind), r.integer, r.real, r.text, r.states,
		r.rangeMin, r.rangeMax, r.variable, r.unknown, r.notApplicable,
	}
}
