package parser

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// maxSpan bounds "a-b" expansions in directives
const maxSpan = 10000

// block is one '#'-introduced definition with the line it started on
type block struct {
	line int
	text string
}

// readBlocks splits a chars or items file into '#' blocks. Directive lines
// starting with '*' and anything before the first block are ignored.
func readBlocks(r io.Reader) ([]block, error) {
	var (
		blocks []block
		cur    *block
		lineNo int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "#"):
			blocks = append(blocks, block{line: lineNo, text: strings.TrimSpace(line[1:])})
			cur = &blocks[len(blocks)-1]
		case strings.HasPrefix(line, "*") && cur == nil:
			continue
		case cur != nil:
			cur.text += " " + line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return blocks, nil
}

// directive is one '*NAME body' entry of a specs file, possibly spanning lines
type directive struct {
	line int
	name string
	body string
}

func readDirectives(r io.Reader) ([]directive, error) {
	var (
		out    []directive
		lineNo int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "*") {
			name, body := splitDirective(line[1:])
			out = append(out, directive{line: lineNo, name: name, body: body})
			continue
		}
		if len(out) > 0 {
			out[len(out)-1].body += " " + line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return out, nil
}

// splitDirective separates the upper-case directive name from its body
func splitDirective(s string) (string, string) {
	end := 0
	for i, r := range s {
		if r >= 'A' && r <= 'Z' || r == ' ' {
			end = i + 1
			continue
		}
		break
	}
	return strings.TrimSpace(s[:end]), strings.TrimSpace(s[end:])
}

// splitOutside splits s on sep, ignoring separators inside <...> comments
func splitOutside(s string, sep func(rune) bool) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0 && sep(r):
			parts = append(parts, s[start:i])
			start = i + len(string(r))
		}
	}
	return append(parts, s[start:])
}

func isSlash(r rune) bool { return r == '/' }

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

// stripComments removes <...> comments, including nested ones
func stripComments(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cleanText unwraps a fully bracketed description, otherwise drops inline
// comments, then collapses whitespace.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") && closingBracket(s) == len(s)-1 {
		s = s[1 : len(s)-1]
	} else {
		s = stripComments(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

// closingBracket returns the index of the '>' matching the '<' at s[0]
func closingBracket(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseSpan reads "n" or "a-b" into the list of covered numbers
func parseSpan(s string) ([]int, error) {
	lo, hi, found := strings.Cut(s, "-")
	a, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "number %q", s)
	}
	if !found {
		return []int{a}, nil
	}
	b, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil || b < a || b-a > maxSpan {
		return nil, errors.Wrapf(ErrMalformed, "span %q", s)
	}
	out := make([]int, 0, b-a+1)
	for n := a; n <= b; n++ {
		out = append(out, n)
	}
	return out, nil
}
