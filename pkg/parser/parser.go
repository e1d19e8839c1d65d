// ABOUTME: DELTA chars/specs/items file ingestion
// ABOUTME: Accumulates raw definitions and resolves them into a validated matrix

package parser

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/nainya/deltakey/pkg/delta"
)

// Default file names inside a DELTA data directory
const (
	CharsFile = "chars"
	SpecsFile = "specs"
	ItemsFile = "items"
)

var (
	// ErrNoCharacters is returned when no character definitions were read
	ErrNoCharacters = errors.New("parser: no characters defined")

	// ErrMalformed reports a definition that could not be read
	ErrMalformed = errors.New("parser: malformed definition")
)

// Parser collects definitions from the three DELTA files. Files may be fed
// in any order; types, flags and codings are resolved by Matrix.
type Parser struct {
	characters map[int]*delta.Character
	items      []rawItem
	types      map[int]delta.CharacterType
	implicit   map[int]int
	mandatory  map[int]bool
	omitted    map[int]bool
	deps       []delta.Dependency
	log        zerolog.Logger
}

type rawItem struct {
	name  string
	codes []rawCoding
}

type rawCoding struct {
	character int
	raw       string
	text      bool // Angle-bracketed text, never reinterpreted
}

// Option configures a Parser
type Option func(*Parser)

// WithLogger attaches a logger for ingestion warnings
func WithLogger(l zerolog.Logger) Option {
	return func(p *Parser) {
		p.log = l.With().Str("component", "parser").Logger()
	}
}

// New creates an empty parser
func New(opts ...Option) *Parser {
	p := &Parser{
		characters: make(map[int]*delta.Character),
		types:      make(map[int]delta.CharacterType),
		implicit:   make(map[int]int),
		mandatory:  make(map[int]bool),
		omitted:    make(map[int]bool),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseDir reads chars, specs and items from dir. A missing specs file is
// tolerated; every character then defaults to unordered multistate.
func ParseDir(dir string, opts ...Option) (*delta.Matrix, error) {
	p := New(opts...)

	steps := []struct {
		name     string
		fn       func(io.Reader) error
		optional bool
	}{
		{CharsFile, p.ParseCharacters, false},
		{SpecsFile, p.ParseSpecs, true},
		{ItemsFile, p.ParseItems, false},
	}

	for _, s := range steps {
		path := filepath.Join(dir, s.name)
		f, err := os.Open(path)
		if err != nil {
			if s.optional && os.IsNotExist(err) {
				p.log.Warn().Str("file", path).Msg("specs file missing, using default types")
				continue
			}
			return nil, errors.Wrapf(err, "open %s", path)
		}
		err = s.fn(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}

	return p.Matrix()
}

// Matrix resolves everything read so far into a matrix
func (p *Parser) Matrix() (*delta.Matrix, error) {
	if len(p.characters) == 0 {
		return nil, ErrNoCharacters
	}

	numbers := make([]int, 0, len(p.characters))
	for n := range p.characters {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	p.warnUnknown("type", keys(p.types))
	p.warnUnknown("implicit value", keys(p.implicit))
	p.warnUnknown("mandatory flag", keys(p.mandatory))
	p.warnUnknown("omit flag", keys(p.omitted))

	chars := make([]*delta.Character, 0, len(numbers))
	for _, n := range numbers {
		src := p.characters[n]
		c := *src
		c.Type = delta.TypeUnorderedMultistate
		if t, ok := p.types[n]; ok {
			c.Type = t
		}
		if v, ok := p.implicit[n]; ok {
			iv := v
			c.ImplicitValue = &iv
		}
		c.Mandatory = p.mandatory[n]
		c.OmitFromKey = p.omitted[n]
		if !c.Type.IsMultistate() {
			c.States = nil
		}
		chars = append(chars, &c)
	}

	byNumber := make(map[int]*delta.Character, len(chars))
	for _, c := range chars {
		byNumber[c.Number] = c
	}

	items := make([]*delta.Item, 0, len(p.items))
	skipped := 0
	for i, ri := range p.items {
		it := &delta.Item{Number: i + 1, Name: ri.name, Attributes: make(map[int]delta.Value, len(ri.codes))}
		for _, rc := range ri.codes {
			c, ok := byNumber[rc.character]
			if !ok {
				skipped++
				continue
			}
			v, err := resolve(c, rc)
			if err != nil {
				p.log.Warn().Err(err).Str("item", ri.name).Int("character", rc.character).Msg("skipping coding")
				skipped++
				continue
			}
			it.Attributes[rc.character] = v
		}
		items = append(items, it)
	}
	if skipped > 0 {
		p.log.Warn().Int("codings", skipped).Msg("codings skipped during ingestion")
	}

	m, err := delta.NewMatrix(chars, items, p.deps)
	if err != nil {
		return nil, errors.Wrap(err, "build matrix")
	}

	p.log.Info().
		Int("characters", len(chars)).
		Int("items", len(items)).
		Int("dependencies", len(p.deps)).
		Msg("matrix parsed")

	return m, nil
}

func resolve(c *delta.Character, rc rawCoding) (delta.Value, error) {
	if rc.text {
		return delta.Text(strings.TrimSpace(rc.raw)), nil
	}
	v, err := delta.ParseCoding(rc.raw)
	if err != nil {
		return nil, err
	}
	return delta.Coerce(c, v), nil
}

func (p *Parser) warnUnknown(what string, numbers []int) {
	for _, n := range numbers {
		if _, ok := p.characters[n]; !ok {
			p.log.Warn().Int("character", n).Msgf("%s for undefined character ignored", what)
		}
	}
}

func keys[V any](m map[int]V) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
