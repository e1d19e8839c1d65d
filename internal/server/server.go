// Package server exposes the identification engine over gRPC and HTTP
package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nainya/deltakey/internal/logger"
	"github.com/nainya/deltakey/internal/metrics"
	"github.com/nainya/deltakey/pkg/delta"
	"github.com/nainya/deltakey/pkg/query"
	"github.com/nainya/deltakey/pkg/session"
	"github.com/nainya/deltakey/pkg/storage"
)

// Service composes the query engine with persisted sessions. Every transport
// (gRPC, HTTP, CLI, console) goes through it.
type Service struct {
	store    *storage.Store
	engine   *query.Engine
	sessions *session.Store

	log            *logger.Logger
	metrics        *metrics.Metrics
	defaultSession string
	maxSteps       int

	// Serializes session read-modify-write cycles
	mu sync.Mutex
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the service logger
func WithLogger(l *logger.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultSession names the session used when a request names none
func WithDefaultSession(id string) ServiceOption {
	return func(s *Service) { s.defaultSession = id }
}

// WithMaxSteps bounds AutoKey when the caller does not
func WithMaxSteps(n int) ServiceOption {
	return func(s *Service) { s.maxSteps = n }
}

// NewService loads the stored matrix and builds the engine over it
func NewService(ctx context.Context, store *storage.Store, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		store:          store,
		sessions:       session.NewStore(store.DB()),
		log:            logger.Nop(),
		defaultSession: "default",
		maxSteps:       10,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics()
	}

	start := time.Now()
	m, err := store.LoadMatrix(ctx)
	s.metrics.RecordDbOperation("load_matrix", dbStatus(err), time.Since(start))
	if err != nil {
		s.log.DbLogger("load_matrix").LogDbOperation(time.Since(start), 0, err)
		return nil, fmt.Errorf("failed to load matrix: %w", err)
	}
	s.log.DbLogger("load_matrix").LogDbOperation(time.Since(start), len(m.Items()), nil)

	s.engine = query.NewEngine(m, query.WithLogger(s.log.Zerolog()))
	s.metrics.UpdateMatrixStats(len(m.Characters()), len(m.Items()))
	s.log.Debug("engine ready").
		Int("characters", len(m.Characters())).
		Int("items", len(m.Items())).
		Send()
	return s, nil
}

// Engine returns the underlying query engine
func (s *Service) Engine() *query.Engine {
	return s.engine
}

// Sessions returns the session store
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// DefaultSession returns the session id used when none is given
func (s *Service) DefaultSession() string {
	return s.defaultSession
}

// Ready reports whether the database is reachable
func (s *Service) Ready(ctx context.Context) error {
	return s.store.DB().PingContext(ctx)
}

func (s *Service) sessionID(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return s.defaultSession
	}
	return id
}

func (s *Service) load(ctx context.Context, id string) (*session.Session, error) {
	start := time.Now()
	sess, err := s.sessions.GetOrCreate(ctx, s.sessionID(id))
	s.metrics.RecordDbOperation("get_session", dbStatus(err), time.Since(start))
	return sess, err
}

func (s *Service) save(ctx context.Context, sess *session.Session) error {
	start := time.Now()
	err := s.sessions.Save(ctx, sess)
	s.metrics.RecordDbOperation("save_session", dbStatus(err), time.Since(start))
	return err
}

func (s *Service) observe(op, sessionID string, clauses, survivors int, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	d := time.Since(start)
	s.metrics.RecordQuery(op, status, d, survivors)
	s.log.QueryLogger(sessionID).LogQuery(op, clauses, survivors, d, err)
}

func dbStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// CreateSession starts a new session; an empty id gets a generated one
func (s *Service) CreateSession(ctx context.Context, id string) (*StateView, error) {
	start := time.Now()
	sess, err := s.sessions.Create(ctx, id)
	s.metrics.RecordDbOperation("create_session", dbStatus(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return stateView(sess, s.engine.Matrix().Items()), nil
}

// DeleteSession removes a session
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Delete(ctx, s.sessionID(id))
}

// ListSessions lists stored sessions, most recent first
func (s *Service) ListSessions(ctx context.Context) ([]session.Summary, error) {
	return s.sessions.List(ctx)
}

// State returns the session's selections and survivors
func (s *Service) State(ctx context.Context, id string) (view *StateView, err error) {
	start := time.Now()
	var sess *session.Session
	var survivors []*delta.Item
	defer func() { s.observe("state", s.sessionID(id), clauses(sess), len(survivors), start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, err = s.load(ctx, id); err != nil {
		return nil, err
	}
	if survivors, err = s.engine.Apply(sess.Chain()); err != nil {
		return nil, err
	}
	return stateView(sess, survivors), nil
}

// Rank scores the characters not yet used or excluded over the survivors
func (s *Service) Rank(ctx context.Context, id string) ([]CharacterView, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	chain := sess.Chain()
	survivors, err := s.engine.Apply(chain)
	if err != nil {
		s.observe("rank", sess.ID, len(chain), -1, start, err)
		return nil, err
	}

	skip := chain.Characters()
	for n := range sess.Excluded {
		skip[n] = true
	}
	ranked := s.engine.Rank(survivors, skip)
	s.observe("rank", sess.ID, len(chain), len(survivors), start, nil)
	return characterViews(ranked), nil
}

// Propose returns the best next character for the session. exclude adds
// characters to skip for this call only.
func (s *Service) Propose(ctx context.Context, id string, exclude []int) (view *ProposalView, err error) {
	start := time.Now()
	var sess *session.Session
	survivors := -1
	defer func() { s.observe("propose", s.sessionID(id), clauses(sess), survivors, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, err = s.load(ctx, id); err != nil {
		return nil, err
	}
	excluded := make(map[int]bool, len(sess.Excluded)+len(exclude))
	for n, ex := range sess.Excluded {
		excluded[n] = ex
	}
	for _, n := range exclude {
		excluded[n] = true
	}

	p, err := s.engine.ProposeNext(sess.Chain(), excluded)
	if err != nil {
		return nil, err
	}
	survivors = p.SurvivorCount

	view = &ProposalView{
		SessionID:     sess.ID,
		Status:        p.Status.String(),
		Values:        valueViews(p.Values),
		Candidates:    characterViews(p.Candidates),
		SurvivorCount: p.SurvivorCount,
		Survivors:     itemViews(p.Survivors),
	}
	if p.Status == query.ProposalFound {
		cv := characterView(p.Character)
		view.Character = &cv
	}
	return view, nil
}

// AddFilter parses raw against the character's type and appends the
// resulting clause. The session is only saved when the extended chain
// evaluates cleanly.
func (s *Service) AddFilter(ctx context.Context, id string, character int, raw string) (*StateView, error) {
	c, err := s.engine.Character(character)
	if err != nil {
		return nil, err
	}
	v, err := delta.ParseValue(c, raw)
	if err != nil {
		return nil, err
	}
	return s.Select(ctx, id, character, v)
}

// Select appends an already typed value as a filter
func (s *Service) Select(ctx context.Context, id string, character int, v delta.Value) (view *StateView, err error) {
	start := time.Now()
	var next *session.Session
	survivors := -1
	defer func() { s.observe("add_filter", s.sessionID(id), clauses(next), survivors, start, err) }()

	c, err := s.engine.Character(character)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next = sess.Clone()
	next.AddFilter(character, v, describe(c, v))

	items, err := s.engine.Apply(next.Chain())
	if err != nil {
		return nil, err
	}
	if err = s.save(ctx, next); err != nil {
		return nil, err
	}
	survivors = len(items)
	return stateView(next, items), nil
}

// Exclude stops a character from being proposed in the session
func (s *Service) Exclude(ctx context.Context, id string, character int) (*StateView, error) {
	if _, err := s.engine.Character(character); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "exclude", id, func(sess *session.Session) error {
		sess.Exclude(character)
		return nil
	})
}

// Undo removes the most recent filter
func (s *Service) Undo(ctx context.Context, id string) (*StateView, error) {
	return s.mutate(ctx, "undo", id, func(sess *session.Session) error {
		_, err := sess.Undo()
		return err
	})
}

// Reset clears all filters and exclusions
func (s *Service) Reset(ctx context.Context, id string) (*StateView, error) {
	return s.mutate(ctx, "reset", id, func(sess *session.Session) error {
		sess.Reset()
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, op, id string, fn func(*session.Session) error) (view *StateView, err error) {
	start := time.Now()
	var sess *session.Session
	survivors := -1
	defer func() { s.observe(op, s.sessionID(id), clauses(sess), survivors, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, err = s.load(ctx, id); err != nil {
		return nil, err
	}
	if err = fn(sess); err != nil {
		return nil, err
	}
	items, err := s.engine.Apply(sess.Chain())
	if err != nil {
		return nil, err
	}
	if err = s.save(ctx, sess); err != nil {
		return nil, err
	}
	survivors = len(items)
	return stateView(sess, items), nil
}

// Values returns the histogram of a character over the session's survivors
func (s *Service) Values(ctx context.Context, id string, character int) (values []ValueView, err error) {
	start := time.Now()
	var sess *session.Session
	survivors := -1
	defer func() { s.observe("values", s.sessionID(id), clauses(sess), survivors, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, err = s.load(ctx, id); err != nil {
		return nil, err
	}
	items, err := s.engine.Apply(sess.Chain())
	if err != nil {
		return nil, err
	}
	survivors = len(items)
	counts, err := s.engine.ValuesOf(character, items)
	if err != nil {
		return nil, err
	}
	return valueViews(counts), nil
}

// CharacterInfo describes a character and measures it over the survivors
func (s *Service) CharacterInfo(ctx context.Context, id string, character int) (*CharacterDetail, error) {
	c, err := s.engine.Character(character)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sess, err := s.load(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	items, err := s.engine.Apply(sess.Chain())
	if err != nil {
		return nil, err
	}
	info, err := s.engine.Describe(character, items)
	if err != nil {
		return nil, err
	}
	counts, err := s.engine.ValuesOf(character, items)
	if err != nil {
		return nil, err
	}

	detail := &CharacterDetail{
		CharacterView: characterView(info),
		TypeName:      c.Type.Name(),
		Units:         c.Units,
		Mandatory:     c.Mandatory,
		OmitFromKey:   c.OmitFromKey,
		Implicit:      c.ImplicitValue,
		Values:        valueViews(counts),
	}
	for _, n := range c.StateNumbers() {
		detail.States = append(detail.States, StateDescription{Number: n, Description: c.States[n]})
	}
	for _, d := range s.engine.Matrix().DependentsOf(character) {
		detail.Dependencies = append(detail.Dependencies, DependencyView{States: d.States, Dependents: d.Dependents})
	}
	return detail, nil
}

// Items lists the session's surviving items by name
func (s *Service) Items(ctx context.Context, id string) ([]ItemView, error) {
	view, err := s.State(ctx, id)
	if err != nil {
		return nil, err
	}
	return view.Survivors, nil
}

// Key builds a greedy key over the full item set without touching any
// session
func (s *Service) Key(ctx context.Context, maxSteps int) (steps []StepView, err error) {
	start := time.Now()
	remaining := -1
	defer func() { s.observe("key", "", 0, remaining, start, err) }()

	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if maxSteps <= 0 {
		maxSteps = s.maxSteps
	}
	built, err := s.engine.BuildKey(maxSteps, query.FirstValue)
	if err != nil {
		return nil, err
	}
	s.metrics.KeyStepsTotal.Add(float64(len(built)))
	if len(built) > 0 {
		remaining = built[len(built)-1].Remaining
	}
	return stepViews(built), nil
}

// AutoKey resets the session, greedily builds a key following the most
// common value at each step and replays it into the session.
func (s *Service) AutoKey(ctx context.Context, id string, maxSteps int) (view *KeyView, err error) {
	start := time.Now()
	var sess *session.Session
	survivors := -1
	defer func() { s.observe("auto_key", s.sessionID(id), clauses(sess), survivors, start, err) }()

	if maxSteps <= 0 {
		maxSteps = s.maxSteps
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, err = s.load(ctx, id); err != nil {
		return nil, err
	}
	sess.Reset()

	steps, err := s.engine.BuildKey(maxSteps, query.FirstValue)
	if err != nil {
		return nil, err
	}
	for _, st := range steps {
		c, err := s.engine.Character(st.Character.Number)
		if err != nil {
			return nil, err
		}
		sess.AddFilter(c.Number, st.Chosen, describe(c, st.Chosen))
	}
	s.metrics.KeyStepsTotal.Add(float64(len(steps)))

	items, err := s.engine.Apply(sess.Chain())
	if err != nil {
		return nil, err
	}
	if err = s.save(ctx, sess); err != nil {
		return nil, err
	}
	survivors = len(items)

	return &KeyView{
		SessionID: sess.ID,
		Steps:     stepViews(steps),
		Final:     stateView(sess, items),
	}, nil
}

// Stats summarises the database contents
func (s *Service) Stats(ctx context.Context) (*StatsView, error) {
	start := time.Now()
	st, err := s.store.Stats(ctx)
	s.metrics.RecordDbOperation("stats", dbStatus(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	s.metrics.SessionsTotal.Set(float64(st.Sessions))
	return &StatsView{Stats: st, DatabasePath: s.store.Path()}, nil
}

func describe(c *delta.Character, v delta.Value) string {
	return fmt.Sprintf("%s = %s", c.Description, query.Label(c, v))
}

func clauses(sess *session.Session) int {
	if sess == nil {
		return 0
	}
	return len(sess.Selections)
}
