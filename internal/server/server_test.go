// Integration tests for the identification service and its gRPC surface
package server

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nainya/deltakey/internal/logger"
	"github.com/nainya/deltakey/internal/metrics"
	"github.com/nainya/deltakey/pkg/delta"
	"github.com/nainya/deltakey/pkg/query"
	"github.com/nainya/deltakey/pkg/session"
	"github.com/nainya/deltakey/pkg/storage"
)

const bufSize = 1024 * 1024

const (
	charColour   = 1
	charSegments = 2
	charShape    = 3
)

// testMatrix is the four-item example with a multistate character added:
// colour is text, segments integer with one unknown, shape unordered.
func testMatrix(t *testing.T) *delta.Matrix {
	t.Helper()
	chars := []*delta.Character{
		{Number: charColour, Description: "colour", Type: delta.TypeText},
		{Number: charSegments, Description: "segments", Type: delta.TypeInteger},
		{Number: charShape, Description: "shape", Type: delta.TypeUnorderedMultistate,
			States: map[int]string{1: "round", 2: "oval"}},
	}
	set := delta.NewMultistateSet
	items := []*delta.Item{
		{Number: 1, Name: "I1", Attributes: map[int]delta.Value{
			charColour: delta.Text("red"), charSegments: delta.Integer(1), charShape: set(1)}},
		{Number: 2, Name: "I2", Attributes: map[int]delta.Value{
			charColour: delta.Text("red"), charSegments: delta.Integer(2), charShape: set(2)}},
		{Number: 3, Name: "I3", Attributes: map[int]delta.Value{
			charColour: delta.Text("blue"), charSegments: delta.Integer(3), charShape: set(1)}},
		{Number: 4, Name: "I4", Attributes: map[int]delta.Value{
			charColour: delta.Text("blue"), charSegments: delta.Unknown, charShape: set(2)}},
	}
	deps := []delta.Dependency{{Parent: charShape, States: []int{2}, Dependents: []int{charSegments}}}
	m, err := delta.NewMatrix(chars, items, deps)
	require.NoError(t, err)
	return m
}

func setupTestService(t *testing.T) (*Service, *metrics.Metrics) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "delta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.SaveMatrix(ctx, testMatrix(t)))

	m := metrics.NewMetrics()
	svc, err := NewService(ctx, store, WithMetrics(m), WithLogger(logger.Nop()), WithMaxSteps(5))
	require.NoError(t, err)
	return svc, m
}

func survivorNames(items []ItemView) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestNewServiceWithoutMatrix(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = NewService(ctx, store)
	assert.ErrorIs(t, err, storage.ErrNoMatrix)
}

func TestServiceProposeFromScratch(t *testing.T) {
	svc, m := setupTestService(t)
	ctx := context.Background()

	p, err := svc.Propose(ctx, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "default", p.SessionID)
	assert.Equal(t, "success", p.Status)
	require.NotNil(t, p.Character)
	assert.Equal(t, charSegments, p.Character.Number)
	assert.InDelta(t, 2.25, p.Character.SelectivityScore, 1e-9)
	assert.Equal(t, 4, p.SurvivorCount)

	labels := make([]string, len(p.Values))
	for i, v := range p.Values {
		labels[i] = v.Label
	}
	assert.Equal(t, []string{"1", "2", "3"}, labels)

	numbers := make([]int, len(p.Candidates))
	for i, c := range p.Candidates {
		numbers[i] = c.Number
	}
	assert.Equal(t, []int{charSegments, charColour, charShape}, numbers)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryOperationsTotal.WithLabelValues("propose", "success")))
}

func TestServiceProposeExclusions(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	p, err := svc.Propose(ctx, "s1", []int{charSegments})
	require.NoError(t, err)
	require.NotNil(t, p.Character)
	assert.Equal(t, charColour, p.Character.Number)

	_, err = svc.Exclude(ctx, "s1", charColour)
	require.NoError(t, err)

	p, err = svc.Propose(ctx, "s1", []int{charSegments})
	require.NoError(t, err)
	assert.Equal(t, charShape, p.Character.Number)

	// The per-call exclusion is not persisted
	p, err = svc.Propose(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, charSegments, p.Character.Number)

	_, err = svc.Exclude(ctx, "s1", 42)
	assert.ErrorIs(t, err, query.ErrCharacterNotFound)
}

func TestServiceAddFilterIdentifies(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	state, err := svc.AddFilter(ctx, "s1", charSegments, "1")
	require.NoError(t, err)
	assert.Equal(t, StatusIdentified, state.Status)
	assert.Equal(t, []string{"I1"}, survivorNames(state.Survivors))
	require.Len(t, state.Selections, 1)
	assert.Equal(t, "segments = 1", state.Selections[0].Description)

	p, err := svc.Propose(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, "no_candidates", p.Status)
	assert.Nil(t, p.Character)
	assert.Equal(t, 1, p.SurvivorCount)
}

func TestServiceAddFilterNarrows(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	state, err := svc.AddFilter(ctx, "s1", charColour, "red")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, state.Status)
	assert.Equal(t, []string{"I1", "I2"}, survivorNames(state.Survivors))

	p, err := svc.Propose(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, charSegments, p.Character.Number)

	state, err = svc.AddFilter(ctx, "s1", charShape, "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"I2"}, survivorNames(state.Survivors))
	assert.Equal(t, "shape = 2. oval", state.Selections[1].Description)

	// Another session is untouched
	other, err := svc.State(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 4, other.SurvivorCount)
	assert.Empty(t, other.Selections)
}

func TestServiceAddFilterRejectsBadInput(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.AddFilter(ctx, "s1", 99, "1")
	assert.ErrorIs(t, err, query.ErrCharacterNotFound)

	_, err = svc.AddFilter(ctx, "s1", charSegments, "many")
	assert.ErrorIs(t, err, delta.ErrInvalidValue)

	_, err = svc.AddFilter(ctx, "s1", charSegments, "U")
	assert.ErrorIs(t, err, query.ErrUnsupportedValue)

	// Nothing was saved by the failed calls
	state, err := svc.State(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, state.Selections)
}

func TestServiceDeadEnd(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.AddFilter(ctx, "s1", charColour, "red")
	require.NoError(t, err)
	state, err := svc.AddFilter(ctx, "s1", charSegments, "3")
	require.NoError(t, err)
	assert.Equal(t, StatusDeadEnd, state.Status)
	assert.Zero(t, state.SurvivorCount)
}

func TestServiceUndoAndReset(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Undo(ctx, "s1")
	assert.ErrorIs(t, err, session.ErrNothingToUndo)

	_, err = svc.AddFilter(ctx, "s1", charColour, "blue")
	require.NoError(t, err)
	_, err = svc.AddFilter(ctx, "s1", charShape, "1")
	require.NoError(t, err)

	state, err := svc.Undo(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, state.Selections, 1)
	assert.Equal(t, []string{"I3", "I4"}, survivorNames(state.Survivors))

	_, err = svc.Exclude(ctx, "s1", charShape)
	require.NoError(t, err)
	state, err = svc.Reset(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, state.Selections)
	assert.Empty(t, state.Excluded)
	assert.Equal(t, 4, state.SurvivorCount)
}

func TestServiceValuesAndCharacterInfo(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	values, err := svc.Values(ctx, "s1", charColour)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, "blue", values[0].Label)
	assert.Equal(t, 2, values[0].Count)
	assert.Equal(t, "red", values[1].Label)

	_, err = svc.AddFilter(ctx, "s1", charColour, "blue")
	require.NoError(t, err)

	detail, err := svc.CharacterInfo(ctx, "s1", charShape)
	require.NoError(t, err)
	assert.Equal(t, "Unordered multistate", detail.TypeName)
	assert.Equal(t, []StateDescription{{1, "round"}, {2, "oval"}}, detail.States)
	assert.Equal(t, 2, detail.DistinctValues)
	require.Len(t, detail.Dependencies, 1)
	assert.Equal(t, []int{charSegments}, detail.Dependencies[0].Dependents)
	assert.Len(t, detail.Values, 2)

	_, err = svc.Values(ctx, "s1", 99)
	assert.ErrorIs(t, err, query.ErrCharacterNotFound)

	items, err := svc.Items(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"I3", "I4"}, survivorNames(items))
}

func TestServiceRank(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.AddFilter(ctx, "s1", charColour, "red")
	require.NoError(t, err)

	ranked, err := svc.Rank(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, charSegments, ranked[0].Number)
	assert.Equal(t, charShape, ranked[1].Number)
}

func TestServiceAutoKey(t *testing.T) {
	svc, m := setupTestService(t)
	ctx := context.Background()

	_, err := svc.AddFilter(ctx, "s1", charColour, "blue")
	require.NoError(t, err)

	key, err := svc.AutoKey(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, key.Steps, 1)
	assert.Equal(t, charSegments, key.Steps[0].Character.Number)
	assert.Equal(t, "1", key.Steps[0].ChosenLabel)
	assert.Equal(t, 1, key.Steps[0].Remaining)

	// The session was reset and the key replayed into it
	assert.Equal(t, StatusIdentified, key.Final.Status)
	require.Len(t, key.Final.Selections, 1)
	assert.Equal(t, charSegments, key.Final.Selections[0].Character)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeyStepsTotal))
}

func TestServiceSessions(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, 4, created.SurvivorCount)

	_, err = svc.CreateSession(ctx, "named")
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, "named")
	assert.ErrorIs(t, err, session.ErrExists)

	list, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.DeleteSession(ctx, "named"))
	assert.ErrorIs(t, svc.DeleteSession(ctx, "named"), session.ErrNotFound)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Characters)
	assert.Equal(t, 4, stats.Items)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.CharacterTypes["UM"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
		http int
	}{
		{nil, codes.OK, 200},
		{query.ErrCharacterNotFound, codes.NotFound, 404},
		{session.ErrNotFound, codes.NotFound, 404},
		{storage.ErrNoMatrix, codes.NotFound, 404},
		{query.ErrUnsupportedValue, codes.InvalidArgument, 400},
		{delta.ErrInvalidValue, codes.InvalidArgument, 400},
		{errBadRequest, codes.InvalidArgument, 400},
		{session.ErrNothingToUndo, codes.FailedPrecondition, 409},
		{session.ErrExists, codes.FailedPrecondition, 409},
		{context.DeadlineExceeded, codes.DeadlineExceeded, 504},
		{errors.New("disk on fire"), codes.Internal, 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, grpcCode(tc.err), "%v", tc.err)
		assert.Equal(t, tc.http, httpStatus(tc.err), "%v", tc.err)
	}
}

func setupTestGRPC(t *testing.T) (*KeyServiceClient, *metrics.Metrics, func()) {
	svc, m := setupTestService(t)

	lis := bufconn.Listen(bufSize)
	grpcServer := NewGRPCServer(svc, logger.Nop(), m)

	go func() {
		// Server closed is expected during cleanup
		_ = grpcServer.Serve(lis)
	}()

	bufDialer := func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(bufDialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	cleanup := func() {
		conn.Close()
		grpcServer.Stop()
		lis.Close()
	}

	return NewKeyServiceClient(conn), m, cleanup
}

func TestGRPCProposeAndFilter(t *testing.T) {
	client, m, cleanup := setupTestGRPC(t)
	defer cleanup()
	ctx := context.Background()

	resp, err := client.Call(ctx, "Propose", map[string]interface{}{"session_id": "g1"})
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if got := resp.Fields["status"].GetStringValue(); got != "success" {
		t.Errorf("Expected status success, got %s", got)
	}
	character := resp.Fields["character"].GetStructValue()
	if got := character.Fields["number"].GetNumberValue(); got != charSegments {
		t.Errorf("Expected character %d, got %v", charSegments, got)
	}

	resp, err = client.Call(ctx, "AddFilter", map[string]interface{}{
		"session_id": "g1",
		"character":  charSegments,
		"value":      2,
	})
	if err != nil {
		t.Fatalf("AddFilter failed: %v", err)
	}
	if got := resp.Fields["status"].GetStringValue(); got != StatusIdentified {
		t.Errorf("Expected %s, got %s", StatusIdentified, got)
	}
	survivors := resp.Fields["survivors"].GetListValue().GetValues()
	if len(survivors) != 1 || survivors[0].GetStructValue().Fields["name"].GetStringValue() != "I2" {
		t.Errorf("Expected survivor I2, got %v", survivors)
	}

	resp, err = client.Call(ctx, "Undo", map[string]interface{}{"session_id": "g1"})
	if err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if got := resp.Fields["survivor_count"].GetNumberValue(); got != 4 {
		t.Errorf("Expected 4 survivors after undo, got %v", got)
	}

	if got := testutil.ToFloat64(m.GrpcRequestsTotal.WithLabelValues("/deltakey.v1.KeyService/Propose", "OK")); got != 1 {
		t.Errorf("Expected one recorded Propose, got %v", got)
	}
}

func TestGRPCExcludeList(t *testing.T) {
	client, _, cleanup := setupTestGRPC(t)
	defer cleanup()

	resp, err := client.Call(context.Background(), "Propose", map[string]interface{}{
		"exclude": []interface{}{charSegments, charColour},
	})
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	number := resp.Fields["character"].GetStructValue().Fields["number"].GetNumberValue()
	if number != charShape {
		t.Errorf("Expected character %d, got %v", charShape, number)
	}
}

func TestGRPCValuesAutoKeyAndStats(t *testing.T) {
	client, _, cleanup := setupTestGRPC(t)
	defer cleanup()
	ctx := context.Background()

	resp, err := client.Call(ctx, "Values", map[string]interface{}{"character": charShape})
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	values := resp.Fields["values"].GetListValue().GetValues()
	if len(values) != 2 {
		t.Fatalf("Expected 2 values, got %d", len(values))
	}
	if got := values[0].GetStructValue().Fields["label"].GetStringValue(); got != "1. round" {
		t.Errorf("Expected first label '1. round', got %q", got)
	}

	resp, err = client.Call(ctx, "AutoKey", map[string]interface{}{"session_id": "auto", "max_steps": 3})
	if err != nil {
		t.Fatalf("AutoKey failed: %v", err)
	}
	if steps := resp.Fields["steps"].GetListValue().GetValues(); len(steps) != 1 {
		t.Errorf("Expected 1 key step, got %d", len(steps))
	}

	resp, err = client.Call(ctx, "Stats", nil)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if got := resp.Fields["items"].GetNumberValue(); got != 4 {
		t.Errorf("Expected 4 items, got %v", got)
	}

	if _, err := client.Call(ctx, "Reset", map[string]interface{}{"session_id": "auto"}); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	resp, err = client.Call(ctx, "State", map[string]interface{}{"session_id": "auto"})
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if got := resp.Fields["survivor_count"].GetNumberValue(); got != 4 {
		t.Errorf("Expected 4 survivors after reset, got %v", got)
	}
}

func TestGRPCErrorCodes(t *testing.T) {
	client, _, cleanup := setupTestGRPC(t)
	defer cleanup()
	ctx := context.Background()

	cases := []struct {
		method string
		in     map[string]interface{}
		code   codes.Code
	}{
		{"AddFilter", map[string]interface{}{"character": 99, "value": "1"}, codes.NotFound},
		{"AddFilter", map[string]interface{}{"character": charSegments, "value": "many"}, codes.InvalidArgument},
		{"AddFilter", map[string]interface{}{"value": "1"}, codes.InvalidArgument},
		{"AddFilter", map[string]interface{}{"character": 1.5, "value": "1"}, codes.InvalidArgument},
		{"Values", map[string]interface{}{"character": 99}, codes.NotFound},
		{"Undo", map[string]interface{}{"session_id": "fresh"}, codes.FailedPrecondition},
		{"Propose", map[string]interface{}{"exclude": "2"}, codes.InvalidArgument},
	}
	for _, tc := range cases {
		_, err := client.Call(ctx, tc.method, tc.in)
		if got := status.Code(err); got != tc.code {
			t.Errorf("%s(%v): expected %s, got %s (%v)", tc.method, tc.in, tc.code, got, err)
		}
	}
}

func TestServiceKeyLeavesSessionsAlone(t *testing.T) {
	svc, m := setupTestService(t)
	ctx := context.Background()

	_, err := svc.AddFilter(ctx, "s1", charColour, "blue")
	require.NoError(t, err)

	steps, err := svc.Key(ctx, 0)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, charSegments, steps[0].Character.Number)
	assert.Equal(t, 4, steps[0].SurvivorCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeyStepsTotal))

	state, err := svc.State(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, state.Selections, 1)
}
