// ABOUTME: Interactive identification loop for the terminal
// ABOUTME: Proposes characters, reads choices and tracks the session

package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pterm/pterm"

	"github.com/nainya/deltakey/internal/server"
	"github.com/nainya/deltakey/pkg/session"
)

const helpText = `Commands:
  <n>            choose option n for the proposed character
  value <v>      filter the proposed character on a typed value, e.g. "value 3-5"
  skip           never propose the current character again
  exclude <n>    never propose character n
  back           undo the last choice
  restart        clear all choices
  state          show the choices made so far
  help           show this help
  quit           leave the console`

// Console runs an identification session against a Service
type Console struct {
	svc       *server.Service
	sessionID string
	in        *bufio.Scanner
	out       io.Writer
}

// New creates a console reading commands from in and writing to out
func New(svc *server.Service, sessionID string, in io.Reader, out io.Writer) *Console {
	return &Console{
		svc:       svc,
		sessionID: sessionID,
		in:        bufio.NewScanner(in),
		out:       out,
	}
}

// Run loops until quit, end of input or context cancellation
func (c *Console) Run(ctx context.Context) error {
	c.println(pterm.DefaultHeader.Sprint("deltakey interactive identification"))
	c.println("Type 'help' for commands.")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := c.svc.Propose(ctx, c.sessionID, nil)
		if err != nil {
			return fmt.Errorf("propose: %w", err)
		}
		c.showStatus(p)

		line, ok := c.readLine()
		if !ok {
			c.println("")
			return c.in.Err()
		}

		quit, err := c.dispatch(ctx, p, line)
		if err != nil {
			c.println(pterm.Error.Sprintf("%v", err))
		}
		if quit {
			c.println(pterm.Info.Sprint("Goodbye."))
			return nil
		}
	}
}

func (c *Console) showStatus(p *server.ProposalView) {
	c.println("")
	switch {
	case p.SurvivorCount == 0:
		c.println(pterm.Warning.Sprint("No items match these choices. Use 'back' or 'restart'."))
		return
	case p.SurvivorCount == 1:
		c.println(pterm.Success.Sprintf("Identification complete: %s", p.Survivors[0].Name))
		return
	case p.Character == nil:
		c.println(pterm.Warning.Sprintf("The remaining %d items cannot be distinguished:", p.SurvivorCount))
		for _, it := range p.Survivors {
			c.println("  - " + it.Name)
		}
		return
	}

	c.println(pterm.Info.Sprintf("%d items remaining", p.SurvivorCount))
	c.println(pterm.DefaultSection.Sprintf("Character %d: %s", p.Character.Number, p.Character.Description))

	data := pterm.TableData{{"#", "Value", "Items"}}
	for i, v := range p.Values {
		data = append(data, []string{strconv.Itoa(i + 1), v.Label, strconv.Itoa(v.Count)})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		c.println(pterm.Error.Sprintf("render options: %v", err))
		return
	}
	c.println(table)
}

func (c *Console) readLine() (string, bool) {
	fmt.Fprint(c.out, "> ")
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

// dispatch executes one command line. It reports whether the loop should end.
func (c *Console) dispatch(ctx context.Context, p *server.ProposalView, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	args, err := shellquote.Split(line)
	if err != nil {
		args = strings.Fields(line)
	}
	if len(args) == 0 {
		return false, nil
	}

	switch cmd := strings.ToLower(args[0]); cmd {
	case "quit", "exit", "q":
		return true, nil

	case "help", "?":
		c.println(helpText)

	case "back", "undo":
		if _, err := c.svc.Undo(ctx, c.sessionID); err != nil {
			if errors.Is(err, session.ErrNothingToUndo) {
				c.println(pterm.Warning.Sprint("Nothing to undo."))
				return false, nil
			}
			return false, err
		}

	case "restart", "reset":
		if _, err := c.svc.Reset(ctx, c.sessionID); err != nil {
			return false, err
		}
		c.println(pterm.Info.Sprint("Session restarted."))

	case "state":
		return false, c.showSelections(ctx)

	case "skip":
		if p.Character == nil {
			return false, errors.New("no character is being proposed")
		}
		_, err := c.svc.Exclude(ctx, c.sessionID, p.Character.Number)
		return false, err

	case "exclude":
		if len(args) != 2 {
			return false, errors.New("usage: exclude <character number>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return false, fmt.Errorf("not a character number: %q", args[1])
		}
		_, err = c.svc.Exclude(ctx, c.sessionID, n)
		return false, err

	case "value":
		if p.Character == nil {
			return false, errors.New("no character is being proposed")
		}
		if len(args) < 2 {
			return false, errors.New("usage: value <value>")
		}
		_, err := c.svc.AddFilter(ctx, c.sessionID, p.Character.Number, strings.Join(args[1:], " "))
		return false, err

	default:
		n, err := strconv.Atoi(cmd)
		if err != nil {
			return false, fmt.Errorf("unknown command %q, type 'help'", args[0])
		}
		if p.Character == nil {
			return false, errors.New("no character is being proposed")
		}
		if n < 1 || n > len(p.Values) {
			return false, fmt.Errorf("choose an option between 1 and %d", len(p.Values))
		}
		v, err := p.Values[n-1].Value.Decode()
		if err != nil {
			return false, err
		}
		_, err = c.svc.Select(ctx, c.sessionID, p.Character.Number, v)
		return false, err
	}
	return false, nil
}

func (c *Console) showSelections(ctx context.Context) error {
	state, err := c.svc.State(ctx, c.sessionID)
	if err != nil {
		return err
	}
	if len(state.Selections) == 0 {
		c.println("No choices made yet.")
	}
	for i, sel := range state.Selections {
		c.println(fmt.Sprintf("  %d. %s", i+1, sel.Description))
	}
	if len(state.Excluded) > 0 {
		c.println(fmt.Sprintf("  excluded characters: %v", state.Excluded))
	}
	return nil
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}
