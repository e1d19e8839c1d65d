package parser

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/nainya/deltakey/pkg/delta"
)

// numbered matches "n. text" for character headers and state definitions
var numbered = regexp.MustCompile(`^(\d+)\.\s*(.*)$`)

// ParseCharacters reads a chars file: "#n. description/" followed by
// "n. state/" definitions. A slash-terminated token that is not a numbered
// state is taken as the character's units.
func (p *Parser) ParseCharacters(r io.Reader) error {
	blocks, err := readBlocks(r)
	if err != nil {
		return err
	}

	for _, b := range blocks {
		tokens := splitOutside(b.text, isSlash)
		m := numbered.FindStringSubmatch(strings.TrimSpace(tokens[0]))
		if m == nil {
			return errors.Wrapf(ErrMalformed, "line %d: character header %q", b.line, tokens[0])
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return errors.Wrapf(ErrMalformed, "line %d: character number %q", b.line, m[1])
		}
		if _, dup := p.characters[n]; dup {
			return errors.Wrapf(delta.ErrDuplicateCharacter, "line %d: character %d", b.line, n)
		}

		c := &delta.Character{
			Number:      n,
			Description: cleanText(m[2]),
			States:      make(map[int]string),
		}
		for _, tok := range tokens[1:] {
			t := strings.TrimSpace(tok)
			if t == "" {
				continue
			}
			if sm := numbered.FindStringSubmatch(t); sm != nil {
				state, _ := strconv.Atoi(sm[1])
				c.States[state] = cleanText(sm[2])
				continue
			}
			if c.Units == "" {
				c.Units = cleanText(t)
			}
		}
		p.characters[n] = c
	}

	p.log.Debug().Int("characters", len(p.characters)).Msg("characters read")
	return nil
}
