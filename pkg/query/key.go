// ABOUTME: Greedy identification key generation
// ABOUTME: Single-step proposal and the automatic key-building loop

package query

import (
	"time"

	"github.com/cockroachdb/errors"
)

// ProposeNext applies the chain, ranks the unused characters over the
// survivors and returns the best one that still discriminates among them.
// A Proposal with status NoCandidates is terminal, not an error.
func (e *Engine) ProposeNext(chain Chain, excluded map[int]bool) (*Proposal, error) {
	start := time.Now()

	survivors, err := e.Apply(chain)
	if err != nil {
		return nil, err
	}

	skip := chain.Characters()
	for n, ex := range excluded {
		if ex {
			skip[n] = true
		}
	}

	candidates := e.Prune(e.Rank(survivors, skip), survivors)

	p := &Proposal{
		Status:        NoCandidates,
		Candidates:    candidates,
		Survivors:     survivors,
		SurvivorCount: len(survivors),
	}
	if len(candidates) > 0 {
		p.Status = ProposalFound
		p.Character = candidates[0]
		p.Values, err = e.ValuesOf(p.Character.Number, survivors)
		if err != nil {
			return nil, err
		}
	}

	e.trace("propose", start).
		Int("clauses", len(chain)).
		Int("survivors", p.SurvivorCount).
		Stringer("status", p.Status).
		Int("character", p.Character.Number).
		Msg("proposed next character")

	return p, nil
}

// BuildKey greedily builds a key from the full item set. At each step the
// best proposal is taken and choose picks the value to follow. The loop ends
// when no candidate remains, one item or none survives, choose declines, or
// maxSteps steps have been recorded. The result is not an optimal tree.
func (e *Engine) BuildKey(maxSteps int, choose ValueChooser) ([]Step, error) {
	return e.BuildKeyFrom(nil, nil, maxSteps, choose)
}

// BuildKeyFrom continues key generation from an existing chain, never
// proposing excluded characters.
func (e *Engine) BuildKeyFrom(chain Chain, excluded map[int]bool, maxSteps int, choose ValueChooser) ([]Step, error) {
	if choose == nil {
		choose = FirstValue
	}

	steps := make([]Step, 0)
	current := append(Chain(nil), chain...)

	for n := 1; n <= maxSteps; n++ {
		p, err := e.ProposeNext(current, excluded)
		if err != nil {
			return steps, err
		}
		if p.Status == NoCandidates || p.SurvivorCount <= 1 {
			break
		}

		chosen, ok, err := choose(n, p)
		if err != nil {
			return steps, errors.Wrapf(err, "choose value at step %d", n)
		}
		if !ok {
			break
		}

		current = current.With(Clause{Character: p.Character.Number, Value: chosen.Value})
		remaining, err := e.Apply(current)
		if err != nil {
			return steps, err
		}

		steps = append(steps, Step{
			Number:        n,
			Character:     p.Character,
			Values:        p.Values,
			SurvivorCount: p.SurvivorCount,
			Chosen:        chosen.Value,
			ChosenLabel:   chosen.Label,
			Remaining:     len(remaining),
		})

		if len(remaining) <= 1 {
			break
		}
	}

	return steps, nil
}
