// Package api is the HTTP adapter over the orchestrator and the merger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/logger"
	"github.com/sho7650/social-bridge/internal/merger"
	"github.com/sho7650/social-bridge/internal/orchestrator"
)

// Syncer triggers manual passes and reports the last one
type Syncer interface {
	ManualSync(ctx context.Context, contentItemID int64, platformID string) (orchestrator.ManualResult, error)
	LastRunSummary(ctx context.Context) (*core.SyncSummary, error)
}

// Reader answers the read-path operations
type Reader interface {
	GetMergedComments(ctx context.Context, contentItemID int64, native []core.NativeComment) ([]core.MergedComment, error)
	CommentCount(ctx context.Context, contentItemID int64, nativeCount int) (int, error)
	GetInteractions(ctx context.Context, contentItemID int64, platformID string, typ core.InteractionType) ([]core.Interaction, error)
}

// Server handles HTTP requests
type Server struct {
	syncer      Syncer
	reader      Reader
	metrics     http.Handler
	ready       func() bool
	log         *slog.Logger
	passTimeout time.Duration
	router      *mux.Router
	server      *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithReadiness makes /healthz report 503 while ready returns false
func WithReadiness(ready func() bool) Option { return func(s *Server) { s.ready = ready } }

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// WithPassTimeout sizes the write timeout for manual syncs, which run a whole
// pass inside the request
func WithPassTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.passTimeout = d
		}
	}
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

type mergedRequest struct {
	Comments []core.NativeComment `json:"comments"`
}

// NewServer creates a new HTTP server
func NewServer(syncer Syncer, reader Reader, opts ...Option) *Server {
	s := &Server{syncer: syncer, reader: reader, passTimeout: orchestrator.DefaultPassTimeout}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.Or(s.log)

	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "method not allowed"})
	})

	// flat routes, so a path matched with the wrong verb reports 405
	r.HandleFunc("/v1/sync/last", s.handleLastRun).Methods(http.MethodGet)
	r.HandleFunc("/v1/sync/{id:[0-9]+}", s.handleManualSync).Methods(http.MethodPost)
	r.HandleFunc("/v1/interactions/{id:[0-9]+}", s.handleInteractions).Methods(http.MethodGet)
	r.HandleFunc("/v1/comments/{id:[0-9]+}/merged", s.handleMerged).Methods(http.MethodPost)
	r.HandleFunc("/v1/comments/{id:[0-9]+}/count", s.handleCount).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	s.router = r
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.writeTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http_listening", "addr", addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) writeTimeout() time.Duration {
	return s.passTimeout + 30*time.Second
}

func (s *Server) handleManualSync(w http.ResponseWriter, r *http.Request) {
	id, ok := contentItemID(w, r)
	if !ok {
		return
	}

	result, err := s.syncer.ManualSync(r.Context(), id, r.URL.Query().Get("platform"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: result})
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.syncer.LastRunSummary(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if summary == nil {
		writeJSON(w, http.StatusOK, envelope{Success: true, Message: "no sync has run yet"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: summary})
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	id, ok := contentItemID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	interactions, err := s.reader.GetInteractions(r.Context(), id, q.Get("platform"), core.InteractionType(q.Get("type")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if interactions == nil {
		interactions = []core.Interaction{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: interactions})
}

func (s *Server) handleMerged(w http.ResponseWriter, r *http.Request) {
	id, ok := contentItemID(w, r)
	if !ok {
		return
	}

	var req mergedRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid json"})
			return
		}
	}

	merged, err := s.reader.GetMergedComments(r.Context(), id, req.Comments)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if merged == nil {
		merged = []core.MergedComment{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: merged})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	id, ok := contentItemID(w, r)
	if !ok {
		return
	}

	native := 0
	if v := r.URL.Query().Get("native"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, envelope{Message: "native must be a non-negative integer"})
			return
		}
		native = n
	}

	count, err := s.reader.CommentCount(r.Context(), id, native)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]int{"count": count}})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	env := envelope{Message: err.Error()}
	var se *core.SyncError
	if errors.As(err, &se) {
		env.Kind = string(se.Kind)
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("http_request_failed", "error", err)
	}
	writeJSON(w, status, env)
}

// statusFor maps error kinds to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, merger.ErrInvalidType):
		return http.StatusBadRequest
	case core.IsKind(err, core.KindSyncInProgress):
		return http.StatusConflict
	case core.IsKind(err, core.KindInvalidContentItem):
		return http.StatusNotFound
	case core.IsKind(err, core.KindInvalidPlatform):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func contentItemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "invalid content item id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http_request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
