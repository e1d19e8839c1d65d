// ABOUTME: Progressive identification engine over a DELTA matrix
// ABOUTME: Stateless per call; safe to share across sessions

package query

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/deltakey/pkg/delta"
)

// Engine answers ranking, filtering, value and key queries against a
// read-only matrix. It keeps no state between calls.
type Engine struct {
	matrix *delta.Matrix
	log    zerolog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger attaches a logger used for debug tracing of queries
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l.With().Str("component", "query").Logger()
	}
}

// NewEngine creates a new query engine
func NewEngine(m *delta.Matrix, opts ...Option) *Engine {
	e := &Engine{
		matrix: m,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Matrix returns the underlying matrix
func (e *Engine) Matrix() *delta.Matrix {
	return e.matrix
}

// Character looks up a character or returns ErrCharacterNotFound
func (e *Engine) Character(number int) (*delta.Character, error) {
	c, ok := e.matrix.Character(number)
	if !ok {
		return nil, characterNotFound(number)
	}
	return c, nil
}

func (e *Engine) trace(op string, start time.Time) *zerolog.Event {
	return e.log.Debug().Str("operation", op).Dur("duration", time.Since(start))
}
