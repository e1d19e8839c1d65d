package commands

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/nainya/deltakey/internal/server"
)

func renderTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

func renderCharacters(w io.Writer, chars []server.CharacterView) error {
	if len(chars) == 0 {
		_, err := fmt.Fprintln(w, pterm.Warning.Sprint("No character discriminates among the remaining items."))
		return err
	}
	data := pterm.TableData{{"Rank", "Char", "Description", "Type", "Distinct", "Completeness", "Score"}}
	for i, c := range chars {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(c.Number),
			c.Description,
			c.Type,
			strconv.Itoa(c.DistinctValues),
			formatFloat(c.CodingCompleteness),
			formatFloat(c.SelectivityScore),
		})
	}
	return renderTable(w, data)
}

func renderValues(w io.Writer, values []server.ValueView) error {
	data := pterm.TableData{{"#", "Value", "Items"}}
	for i, v := range values {
		data = append(data, []string{strconv.Itoa(i + 1), v.Label, strconv.Itoa(v.Count)})
	}
	return renderTable(w, data)
}

func renderProposal(w io.Writer, p *server.ProposalView) error {
	fmt.Fprintln(w, pterm.Info.Sprintf("Session %s: %d items remaining", p.SessionID, p.SurvivorCount))
	if p.Character == nil {
		fmt.Fprintln(w, pterm.Warning.Sprint("No further character can distinguish the remaining items."))
		return renderItems(w, p.Survivors)
	}
	fmt.Fprintf(w, "Next character: %d. %s (%s, score %s)\n",
		p.Character.Number, p.Character.Description, p.Character.Type, formatFloat(p.Character.SelectivityScore))
	return renderValues(w, p.Values)
}

func renderItems(w io.Writer, items []server.ItemView) error {
	for _, it := range items {
		if _, err := fmt.Fprintf(w, "  %d. %s\n", it.Number, it.Name); err != nil {
			return err
		}
	}
	return nil
}

func renderState(w io.Writer, s *server.StateView) error {
	fmt.Fprintln(w, pterm.Info.Sprintf("Session %s", s.SessionID))
	if len(s.Selections) == 0 {
		fmt.Fprintln(w, "No filters applied.")
	}
	for i, sel := range s.Selections {
		fmt.Fprintf(w, "  %d. [%d] %s\n", i+1, sel.Character, sel.Description)
	}
	if len(s.Excluded) > 0 {
		strs := make([]string, len(s.Excluded))
		for i, n := range s.Excluded {
			strs[i] = strconv.Itoa(n)
		}
		fmt.Fprintf(w, "Excluded characters: %s\n", strings.Join(strs, ", "))
	}

	switch s.Status {
	case server.StatusIdentified:
		fmt.Fprintln(w, pterm.Success.Sprintf("Identified: %s", s.Survivors[0].Name))
		return nil
	case server.StatusDeadEnd:
		fmt.Fprintln(w, pterm.Warning.Sprint("No items match these filters."))
		return nil
	}
	fmt.Fprintf(w, "%d items remaining:\n", s.SurvivorCount)
	return renderItems(w, s.Survivors)
}

// renderKey prints a key as numbered couplets: each step lists the values
// and marks the one that was followed.
func renderKey(w io.Writer, steps []server.StepView) error {
	if len(steps) == 0 {
		_, err := fmt.Fprintln(w, "No key steps: the items cannot be separated further.")
		return err
	}
	for _, st := range steps {
		fmt.Fprintf(w, "%d. %s [char %d] (%d items)\n",
			st.Number, st.Character.Description, st.Character.Number, st.SurvivorCount)
		for _, v := range st.Values {
			marker := " "
			if v.Label == st.ChosenLabel {
				marker = ">"
			}
			fmt.Fprintf(w, "   %s %s (%d)\n", marker, v.Label, v.Count)
		}
		if _, err := fmt.Fprintf(w, "   -> %d remaining\n", st.Remaining); err != nil {
			return err
		}
	}
	return nil
}

func renderStats(w io.Writer, s *server.StatsView) error {
	data := pterm.TableData{
		{"Metric", "Value"},
		{"Database", s.DatabasePath},
		{"Characters", strconv.Itoa(s.Characters)},
		{"Items", strconv.Itoa(s.Items)},
		{"Attributes", strconv.Itoa(s.Attributes)},
		{"Pseudo attributes", strconv.Itoa(s.PseudoAttributes)},
		{"Dependencies", strconv.Itoa(s.Dependencies)},
		{"Sessions", strconv.Itoa(s.Sessions)},
	}
	types := make([]string, 0, len(s.CharacterTypes))
	for t := range s.CharacterTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		data = append(data, []string{"  type " + t, strconv.Itoa(s.CharacterTypes[t])})
	}
	return renderTable(w, data)
}
