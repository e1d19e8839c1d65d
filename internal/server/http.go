package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nainya/deltakey/internal/logger"
	"github.com/nainya/deltakey/internal/metrics"
)

// HTTPServer serves the JSON API
type HTTPServer struct {
	svc     *Service
	mux     *http.ServeMux
	server  *http.Server
	limiter *rate.Limiter
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewHTTPServer creates the JSON API server. limit is requests per second
// shared by all clients.
func NewHTTPServer(svc *Service, port int, limit float64, burst int, log *logger.Logger, m *metrics.Metrics) *HTTPServer {
	h := &HTTPServer{
		svc:     svc,
		mux:     http.NewServeMux(),
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		log:     log,
		metrics: m,
	}
	h.setupRoutes()
	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return h
}

func (h *HTTPServer) setupRoutes() {
	h.handle("GET /api/health", h.handleHealth)
	h.handle("GET /api/database/stats", h.handleStats)
	h.handle("GET /api/sessions", h.handleListSessions)
	h.handle("POST /api/sessions", h.handleCreateSession)
	h.handle("DELETE /api/sessions/{id}", h.handleDeleteSession)
	h.handle("GET /api/rank", h.handleRank)
	h.handle("GET /api/propose", h.handlePropose)
	h.handle("POST /api/filter", h.handleFilter)
	h.handle("POST /api/exclude", h.handleExclude)
	h.handle("GET /api/state", h.handleState)
	h.handle("DELETE /api/state", h.handleReset)
	h.handle("POST /api/undo", h.handleUndo)
	h.handle("GET /api/character/{n}/values", h.handleValues)
	h.handle("GET /api/character/{n}/info", h.handleCharacterInfo)
	h.handle("GET /api/items", h.handleItems)
	h.handle("POST /api/workflow/auto", h.handleAutoKey)
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.mux
}

// Start listens until Shutdown is called
func (h *HTTPServer) Start() error {
	h.log.Info("Starting HTTP API server").Str("addr", h.server.Addr).Send()
	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	h.log.Info("Shutting down HTTP API server").Send()
	return h.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handle registers a route behind rate limiting, logging and metrics
func (h *HTTPServer) handle(pattern string, fn http.HandlerFunc) {
	route := pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		route = pattern[i+1:]
	}
	rlog := h.log.HTTPLogger(route)

	h.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if !h.limiter.Allow() {
			h.metrics.HTTPRateLimited.Inc()
			rlog.Warn("rate limit exceeded").Str("remote", r.RemoteAddr).Send()
			writeError(rec, http.StatusTooManyRequests, "rate limit exceeded")
		} else {
			fn(rec, r)
		}

		d := time.Since(start)
		h.metrics.RecordHTTPRequest(route, strconv.Itoa(rec.status), d)
		rlog.LogHTTPRequest(r.Method, r.URL.Path, rec.status, d)
	}))
}

// fail writes err with the status its kind maps to
func (h *HTTPServer) fail(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed").Err(err).Send()
	}
	writeError(w, code, err.Error())
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type filterRequest struct {
	SessionID string      `json:"session_id"`
	Character *int        `json:"character"`
	Value     interface{} `json:"value"`
}

type excludeRequest struct {
	SessionID string `json:"session_id"`
	Character *int   `json:"character"`
}

type autoKeyRequest struct {
	SessionID string `json:"session_id"`
	MaxSteps  int    `json:"max_steps"`
}

// readBody decodes an optional JSON body
func readBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
}

// sessionOf prefers the body's session id over the query parameter
func sessionOf(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.URL.Query().Get("session")
}

func pathCharacter(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		return 0, fmt.Errorf("%w: character must be a number, got %q", errBadRequest, r.PathValue("n"))
	}
	return n, nil
}

func parseExclude(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%w: exclude must list character numbers, got %q", errBadRequest, part)
		}
		out = append(out, n)
	}
	return out, nil
}

func rawValue(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case nil:
		return "", fmt.Errorf("%w: value is required", errBadRequest)
	}
	return "", fmt.Errorf("%w: value must be a string or number", errBadRequest)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "deltakey"})
}

func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListSessions(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": list, "count": len(list)})
}

func (h *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := readBody(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.svc.CreateSession(r.Context(), req.SessionID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPServer) handleRank(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.svc.Rank(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"characters": ranked})
}

func (h *HTTPServer) handlePropose(w http.ResponseWriter, r *http.Request) {
	exclude, err := parseExclude(r.URL.Query().Get("exclude"))
	if err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.svc.Propose(r.Context(), r.URL.Query().Get("session"), exclude)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPServer) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := readBody(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if req.Character == nil {
		h.fail(w, fmt.Errorf("%w: character is required", errBadRequest))
		return
	}
	raw, err := rawValue(req.Value)
	if err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.svc.AddFilter(r.Context(), sessionOf(r, req.SessionID), *req.Character, raw)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPServer) handleExclude(w http.ResponseWriter, r *http.Request) {
	var req excludeRequest
	if err := readBody(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if req.Character == nil {
		h.fail(w, fmt.Errorf("%w: character is required", errBadRequest))
		return
	}
	view, err := h.svc.Exclude(r.Context(), sessionOf(r, req.SessionID), *req.Character)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.State(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Reset(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPServer) handleUndo(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := readBody(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.svc.Undo(r.Context(), sessionOf(r, req.SessionID))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPServer) handleValues(w http.ResponseWriter, r *http.Request) {
	n, err := pathCharacter(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	id := r.URL.Query().Get("session")
	values, err := h.svc.Values(r.Context(), id, n)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": h.svc.sessionID(id),
		"character":  n,
		"values":     values,
	})
}

func (h *HTTPServer) handleCharacterInfo(w http.ResponseWriter, r *http.Request) {
	n, err := pathCharacter(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	detail, err := h.svc.CharacterInfo(r.Context(), r.URL.Query().Get("session"), n)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *HTTPServer) handleItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Items(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

func (h *HTTPServer) handleAutoKey(w http.ResponseWriter, r *http.Request) {
	var req autoKeyRequest
	if err := readBody(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if req.MaxSteps < 0 {
		h.fail(w, fmt.Errorf("%w: max_steps must not be negative", errBadRequest))
		return
	}
	view, err := h.svc.AutoKey(r.Context(), sessionOf(r, req.SessionID), req.MaxSteps)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
