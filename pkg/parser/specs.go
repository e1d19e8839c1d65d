package parser

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/nainya/deltakey/pkg/delta"
)

var (
	typeSpec      = regexp.MustCompile(`(\d+(?:-\d+)?),([A-Z]{2})`)
	implicitSpec  = regexp.MustCompile(`(\d+(?:-\d+)?),(\d+)`)
	dependentSpec = regexp.MustCompile(`(\d+),([\d/]+):([\d:\-]+)`)
)

// ParseSpecs reads the directives of a specs file. Unrecognised directives
// such as *NUMBER OF CHARACTERS are skipped.
func (p *Parser) ParseSpecs(r io.Reader) error {
	directives, err := readDirectives(r)
	if err != nil {
		return err
	}

	for _, d := range directives {
		var err error
		switch d.name {
		case "CHARACTER TYPES":
			err = p.characterTypes(d.body)
		case "IMPLICIT VALUES":
			err = p.implicitValues(d.body)
		case "MANDATORY CHARACTERS":
			err = p.flagList(d.body, p.mandatory)
		case "OMIT FROM KEY", "EXCLUDED CHARACTERS":
			err = p.flagList(d.body, p.omitted)
		case "DEPENDENT CHARACTERS":
			err = p.dependencies(d.body)
		default:
			p.log.Debug().Str("directive", d.name).Msg("directive ignored")
		}
		if err != nil {
			return errors.Wrapf(err, "line %d: *%s", d.line, d.name)
		}
	}
	return nil
}

func (p *Parser) characterTypes(body string) error {
	for _, m := range typeSpec.FindAllStringSubmatch(body, -1) {
		t := delta.CharacterType(m[2])
		if !t.Valid() {
			return errors.Wrapf(ErrMalformed, "character type %q", m[2])
		}
		span, err := parseSpan(m[1])
		if err != nil {
			return err
		}
		for _, n := range span {
			p.types[n] = t
		}
	}
	return nil
}

func (p *Parser) implicitValues(body string) error {
	for _, m := range implicitSpec.FindAllStringSubmatch(body, -1) {
		state, err := strconv.Atoi(m[2])
		if err != nil {
			return errors.Wrapf(ErrMalformed, "implicit state %q", m[2])
		}
		span, err := parseSpan(m[1])
		if err != nil {
			return err
		}
		for _, n := range span {
			p.implicit[n] = state
		}
	}
	return nil
}

func (p *Parser) flagList(body string, into map[int]bool) error {
	for _, f := range strings.Fields(body) {
		span, err := parseSpan(f)
		if err != nil {
			return err
		}
		for _, n := range span {
			into[n] = true
		}
	}
	return nil
}

// dependencies reads "parent,states:dependents" groups, where states are
// joined by '/' and dependents by ':' with optional a-b spans.
func (p *Parser) dependencies(body string) error {
	for _, m := range dependentSpec.FindAllStringSubmatch(body, -1) {
		parent, _ := strconv.Atoi(m[1])

		var states []int
		for _, s := range strings.Split(m[2], "/") {
			n, err := strconv.Atoi(s)
			if err != nil {
				return errors.Wrapf(ErrMalformed, "dependency state %q", s)
			}
			states = append(states, n)
		}

		var dependents []int
		for _, s := range strings.Split(m[3], ":") {
			if s == "" {
				continue
			}
			span, err := parseSpan(s)
			if err != nil {
				return err
			}
			dependents = append(dependents, span...)
		}

		p.deps = append(p.deps, delta.Dependency{Parent: parent, States: states, Dependents: dependents})
	}
	return nil
}
