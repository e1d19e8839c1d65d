package server

import (
	"time"

	"github.com/nainya/deltakey/pkg/delta"
	"github.com/nainya/deltakey/pkg/query"
	"github.com/nainya/deltakey/pkg/session"
	"github.com/nainya/deltakey/pkg/storage"
)

// Identification status reported with every session state
const (
	StatusInProgress = "in_progress"
	StatusIdentified = "identified"
	StatusDeadEnd    = "dead_end"
)

// CharacterView is a ranked character as returned by the APIs
type CharacterView struct {
	Number             int     `json:"number" yaml:"number"`
	Description        string  `json:"description" yaml:"description"`
	Type               string  `json:"type" yaml:"type"`
	DistinctValues     int     `json:"distinct_values" yaml:"distinct_values"`
	CodingCompleteness float64 `json:"coding_completeness" yaml:"coding_completeness"`
	SelectivityScore   float64 `json:"selectivity_score" yaml:"selectivity_score"`
}

// ValueView is one entry of a value histogram
type ValueView struct {
	Value delta.EncodedValue `json:"value" yaml:"value"`
	Label string             `json:"label" yaml:"label"`
	Count int                `json:"count" yaml:"count"`
}

// ItemView identifies an item
type ItemView struct {
	Number int    `json:"number" yaml:"number"`
	Name   string `json:"name" yaml:"name"`
}

// SelectionView is one applied filter
type SelectionView struct {
	Character   int                `json:"character" yaml:"character"`
	Value       delta.EncodedValue `json:"value" yaml:"value"`
	Description string             `json:"description" yaml:"description"`
	AddedAt     time.Time          `json:"added_at" yaml:"added_at"`
}

// StateView is a session with its current survivors
type StateView struct {
	SessionID     string          `json:"session_id" yaml:"session_id"`
	Status        string          `json:"status" yaml:"status"`
	Selections    []SelectionView `json:"selections" yaml:"selections"`
	Excluded      []int           `json:"excluded" yaml:"excluded"`
	SurvivorCount int             `json:"survivor_count" yaml:"survivor_count"`
	Survivors     []ItemView      `json:"survivors" yaml:"survivors"`
}

// ProposalView is the next character to ask about
type ProposalView struct {
	SessionID     string          `json:"session_id" yaml:"session_id"`
	Status        string          `json:"status" yaml:"status"`
	Character     *CharacterView  `json:"character,omitempty" yaml:"character,omitempty"`
	Values        []ValueView     `json:"values" yaml:"values"`
	Candidates    []CharacterView `json:"candidates" yaml:"candidates"`
	SurvivorCount int             `json:"survivor_count" yaml:"survivor_count"`
	Survivors     []ItemView      `json:"survivors" yaml:"survivors"`
}

// StateDescription is one declared multistate state
type StateDescription struct {
	Number      int    `json:"number" yaml:"number"`
	Description string `json:"description" yaml:"description"`
}

// DependencyView lists characters controlled by a parent's states
type DependencyView struct {
	States     []int `json:"states" yaml:"states"`
	Dependents []int `json:"dependents" yaml:"dependents"`
}

// CharacterDetail describes a character and its statistics over the
// session's survivors
type CharacterDetail struct {
	CharacterView
	TypeName     string             `json:"type_name" yaml:"type_name"`
	Units        string             `json:"units,omitempty" yaml:"units,omitempty"`
	States       []StateDescription `json:"states,omitempty" yaml:"states,omitempty"`
	Mandatory    bool               `json:"mandatory" yaml:"mandatory"`
	OmitFromKey  bool               `json:"omit_from_key" yaml:"omit_from_key"`
	Implicit     *int               `json:"implicit_value,omitempty" yaml:"implicit_value,omitempty"`
	Dependencies []DependencyView   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Values       []ValueView        `json:"values" yaml:"values"`
}

// StepView is one generated key step
type StepView struct {
	Number        int                `json:"number" yaml:"number"`
	Character     CharacterView      `json:"character" yaml:"character"`
	Values        []ValueView        `json:"values" yaml:"values"`
	SurvivorCount int                `json:"survivor_count" yaml:"survivor_count"`
	Chosen        delta.EncodedValue `json:"chosen" yaml:"chosen"`
	ChosenLabel   string             `json:"chosen_label" yaml:"chosen_label"`
	Remaining     int                `json:"remaining" yaml:"remaining"`
}

// KeyView is an automatically generated key and the resulting state
type KeyView struct {
	SessionID string     `json:"session_id" yaml:"session_id"`
	Steps     []StepView `json:"steps" yaml:"steps"`
	Final     *StateView `json:"final" yaml:"final"`
}

// StatsView summarises the database and loaded matrix
type StatsView struct {
	storage.Stats `yaml:",inline"`
	DatabasePath  string `json:"database_path" yaml:"database_path"`
}

func characterView(info query.CharacterInfo) CharacterView {
	return CharacterView{
		Number:             info.Number,
		Description:        info.Description,
		Type:               string(info.Type),
		DistinctValues:     info.DistinctValues,
		CodingCompleteness: info.CodingCompleteness,
		SelectivityScore:   info.SelectivityScore,
	}
}

func characterViews(infos []query.CharacterInfo) []CharacterView {
	out := make([]CharacterView, len(infos))
	for i, info := range infos {
		out[i] = characterView(info)
	}
	return out
}

func valueViews(values []query.ValueCount) []ValueView {
	out := make([]ValueView, len(values))
	for i, v := range values {
		out[i] = ValueView{Value: delta.Encode(v.Value), Label: v.Label, Count: v.Count}
	}
	return out
}

func itemViews(items []*delta.Item) []ItemView {
	out := make([]ItemView, len(items))
	for i, it := range items {
		out[i] = ItemView{Number: it.Number, Name: it.Name}
	}
	return out
}

func stateView(s *session.Session, survivors []*delta.Item) *StateView {
	sels := make([]SelectionView, len(s.Selections))
	for i, sel := range s.Selections {
		sels[i] = SelectionView{
			Character:   sel.Character,
			Value:       delta.Encode(sel.Value),
			Description: sel.Description,
			AddedAt:     sel.AddedAt,
		}
	}
	return &StateView{
		SessionID:     s.ID,
		Status:        identificationStatus(len(survivors)),
		Selections:    sels,
		Excluded:      s.ExcludedNumbers(),
		SurvivorCount: len(survivors),
		Survivors:     itemViews(survivors),
	}
}

func identificationStatus(survivors int) string {
	switch survivors {
	case 0:
		return StatusDeadEnd
	case 1:
		return StatusIdentified
	}
	return StatusInProgress
}

func stepViews(steps []query.Step) []StepView {
	out := make([]StepView, len(steps))
	for i, st := range steps {
		out[i] = StepView{
			Number:        st.Number,
			Character:     characterView(st.Character),
			Values:        valueViews(st.Values),
			SurvivorCount: st.SurvivorCount,
			Chosen:        delta.Encode(st.Chosen),
			ChosenLabel:   st.ChosenLabel,
			Remaining:     st.Remaining,
		}
	}
	return out
}
