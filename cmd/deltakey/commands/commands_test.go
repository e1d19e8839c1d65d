package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nainya/deltakey/internal/server"
)

const (
	datasetChars = `*SHOW: Test beetles
#1. elytra colour/ 1. red/ 2. blue/
#2. body size/ 1. small/ 2. large/ 3. huge/
`
	datasetItems = `*ITEM DESCRIPTIONS
# Alpha/ 1,1 2,1
# Beta/ 1,1 2,2
# Gamma/ 1,2 2,3
`
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

// runCLI executes the root command against db and returns stdout
func runCLI(t *testing.T, db, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--db", db, "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func ingested(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chars"), []byte(datasetChars), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items"), []byte(datasetItems), 0o644))

	db := filepath.Join(t.TempDir(), "delta.db")
	out, err := runCLI(t, db, "", "ingest", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 2 characters and 3 items")
	return db
}

func TestIngestJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chars"), []byte(datasetChars), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "items"), []byte(datasetItems), 0o644))
	db := filepath.Join(t.TempDir(), "delta.db")

	out, err := runCLI(t, db, "", "--json", "ingest", dir)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, float64(2), got["characters"])
	assert.Equal(t, float64(3), got["items"])
	assert.Equal(t, db, got["database"])
}

func TestIdentificationFlow(t *testing.T) {
	db := ingested(t)

	out, err := runCLI(t, db, "", "--json", "propose")
	require.NoError(t, err)
	var p server.ProposalView
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	require.NotNil(t, p.Character)
	assert.Equal(t, 2, p.Character.Number)
	assert.Equal(t, 3, p.SurvivorCount)
	assert.Len(t, p.Values, 3)

	out, err = runCLI(t, db, "", "--json", "add-filter", "2", "1")
	require.NoError(t, err)
	var state server.StateView
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, server.StatusIdentified, state.Status)
	require.Len(t, state.Survivors, 1)
	assert.Equal(t, "Alpha", state.Survivors[0].Name)

	out, err = runCLI(t, db, "", "state")
	require.NoError(t, err)
	assert.Contains(t, out, "Identified: Alpha")

	out, err = runCLI(t, db, "", "--json", "undo")
	require.NoError(t, err)
	state = server.StateView{}
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, server.StatusInProgress, state.Status)
	assert.Equal(t, 3, state.SurvivorCount)
	assert.Empty(t, state.Selections)

	_, err = runCLI(t, db, "", "undo")
	assert.Error(t, err)
}

func TestExcludeAndReset(t *testing.T) {
	db := ingested(t)

	out, err := runCLI(t, db, "", "exclude", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Excluded characters: 2")

	out, err = runCLI(t, db, "", "--json", "propose")
	require.NoError(t, err)
	var p server.ProposalView
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	require.NotNil(t, p.Character)
	assert.Equal(t, 1, p.Character.Number)

	out, err = runCLI(t, db, "", "--json", "reset")
	require.NoError(t, err)
	var state server.StateView
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Empty(t, state.Excluded)
}

func TestSessionFlag(t *testing.T) {
	db := ingested(t)

	_, err := runCLI(t, db, "", "--session", "other", "add-filter", "1", "2")
	require.NoError(t, err)

	out, err := runCLI(t, db, "", "--json", "state")
	require.NoError(t, err)
	var state server.StateView
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "default", state.SessionID)
	assert.Equal(t, 3, state.SurvivorCount)

	out, err = runCLI(t, db, "", "--session", "other", "--json", "state")
	require.NoError(t, err)
	state = server.StateView{}
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "Gamma", state.Survivors[0].Name)

	out, err = runCLI(t, db, "", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "other")
}

func TestValuesAndRank(t *testing.T) {
	db := ingested(t)

	out, err := runCLI(t, db, "", "--json", "values", "1")
	require.NoError(t, err)
	var values []server.ValueView
	require.NoError(t, json.Unmarshal([]byte(out), &values))
	require.Len(t, values, 2)
	assert.Equal(t, "1. red", values[0].Label)
	assert.Equal(t, 2, values[0].Count)

	out, err = runCLI(t, db, "", "rank")
	require.NoError(t, err)
	assert.Contains(t, out, "body size")
	assert.Contains(t, out, "elytra colour")
}

func TestKeyFormats(t *testing.T) {
	db := ingested(t)

	out, err := runCLI(t, db, "", "key", "--format", "json")
	require.NoError(t, err)
	var key struct {
		Steps []server.StepView `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &key))
	require.NotEmpty(t, key.Steps)
	assert.Equal(t, 2, key.Steps[0].Character.Number)

	out, err = runCLI(t, db, "", "key", "--format", "yaml")
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc, "steps")

	out, err = runCLI(t, db, "", "key")
	require.NoError(t, err)
	assert.Contains(t, out, "body size [char 2]")

	// Read-only unless --apply
	out, err = runCLI(t, db, "", "--json", "state")
	require.NoError(t, err)
	var state server.StateView
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Empty(t, state.Selections)

	_, err = runCLI(t, db, "", "key", "--apply")
	require.NoError(t, err)
	out, err = runCLI(t, db, "", "--json", "state")
	require.NoError(t, err)
	state = server.StateView{}
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.NotEmpty(t, state.Selections)

	_, err = runCLI(t, db, "", "key", "--format", "xml")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	db := ingested(t)

	out, err := runCLI(t, db, "", "--json", "stats")
	require.NoError(t, err)
	var stats server.StatsView
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Characters)
	assert.Equal(t, 3, stats.Items)
	assert.Equal(t, db, stats.DatabasePath)

	out, err = runCLI(t, db, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Characters")
}

func TestInteractive(t *testing.T) {
	db := ingested(t)

	out, err := runCLI(t, db, "value 1\nquit\n", "interactive")
	require.NoError(t, err)
	assert.Contains(t, out, "Character 2: body size")
	assert.Contains(t, out, "Identification complete: Alpha")
	assert.Contains(t, out, "Goodbye.")
}

func TestCommandErrors(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty.db")
	_, err := runCLI(t, empty, "", "propose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deltakey ingest")

	db := ingested(t)
	tests := []struct {
		name string
		args []string
	}{
		{"non-numeric character", []string{"add-filter", "x", "1"}},
		{"unknown character", []string{"add-filter", "99", "1"}},
		{"bad state", []string{"add-filter", "1", "abc"}},
		{"missing argument", []string{"values"}},
		{"missing directory", []string{"ingest", filepath.Join(t.TempDir(), "nope")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, db, "", tt.args...)
			assert.Error(t, err)
		})
	}

	_, err = runCLI(t, db, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "stats")
	assert.Error(t, err)
}
