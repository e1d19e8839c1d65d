package parser

import (
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseItems reads an items file. Each "# name/" block is followed by
// attribute tokens "n,value" or "n<text>"; items are numbered in the order
// they appear.
func (p *Parser) ParseItems(r io.Reader) error {
	blocks, err := readBlocks(r)
	if err != nil {
		return err
	}

	for _, b := range blocks {
		parts := splitOutside(b.text, isSlash)
		name := cleanText(parts[0])
		if name == "" || len(parts) < 2 {
			return errors.Wrapf(ErrMalformed, "line %d: item header %q", b.line, b.text)
		}
		rest := strings.Join(parts[1:], "/")

		ri := rawItem{name: name}
		for _, tok := range splitOutside(rest, isSpace) {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			rc, ok, err := parseAttribute(tok)
			if err != nil {
				return errors.Wrapf(err, "line %d: item %q", b.line, name)
			}
			if ok {
				ri.codes = append(ri.codes, rc)
			}
		}
		p.items = append(p.items, ri)
	}

	p.log.Debug().Int("items", len(p.items)).Msg("items read")
	return nil
}

// parseAttribute reads one attribute token. A character listed without a
// value yields ok=false.
func parseAttribute(tok string) (rawCoding, bool, error) {
	digits := 0
	for digits < len(tok) && tok[digits] >= '0' && tok[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return rawCoding{}, false, errors.Wrapf(ErrMalformed, "attribute %q", tok)
	}
	n, err := strconv.Atoi(tok[:digits])
	if err != nil {
		return rawCoding{}, false, errors.Wrapf(ErrMalformed, "attribute %q", tok)
	}
	rest := tok[digits:]

	var text string
	if strings.HasPrefix(rest, "<") {
		end := closingBracket(rest)
		if end < 0 {
			return rawCoding{}, false, errors.Wrapf(ErrMalformed, "unterminated comment in %q", tok)
		}
		text = rest[1:end]
		rest = rest[end+1:]
	}

	if strings.HasPrefix(rest, ",") {
		raw := strings.TrimSpace(stripComments(rest[1:]))
		if raw == "" {
			return rawCoding{}, false, nil
		}
		return rawCoding{character: n, raw: raw}, true, nil
	}
	if rest != "" {
		return rawCoding{}, false, errors.Wrapf(ErrMalformed, "attribute %q", tok)
	}
	if strings.TrimSpace(text) == "" {
		return rawCoding{}, false, nil
	}
	return rawCoding{character: n, raw: text, text: true}, true, nil
}
