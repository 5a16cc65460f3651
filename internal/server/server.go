// Package server exposes the mixplay operations over a small JSON HTTP API.
//
// Routes:
//
//	GET  /api/search?q=&max=        multi-tier search for one word
//	POST /api/compose               compose a sentence without rendering
//	POST /api/generate              compose, render and write audio + info
//	GET  /api/words                 vocabulary of the live index
//	GET  /api/words/random/{count}  random vocabulary sample
//	POST /api/reload-index          rebuild the index from the source
//	GET  /api/stats?top=            corpus statistics
//	GET  /audio/{file}              generated audio and info files
//
// Health probes and the metrics endpoint are mounted by the caller through
// [WithHealth] and [WithMetricsHandler].
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MrWong99/mixplay/internal/app"
	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/internal/health"
	"github.com/MrWong99/mixplay/internal/observe"
)

const (
	defaultSearchMax = 10
	defaultStatsTop  = 10

	// maxBodyBytes bounds JSON request bodies.
	maxBodyBytes = 1 << 20
)

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// Server routes HTTP requests to an [app.App].
type Server struct {
	app            *app.App
	metrics        *observe.Metrics
	health         *health.Handler
	metricsHandler http.Handler
}

// New creates a server for a.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{app: a}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the fully routed handler wrapped in the observe
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/compose", s.handleCompose)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/words", s.handleWords)
	mux.HandleFunc("GET /api/words/random/{count}", s.handleRandomWords)
	mux.HandleFunc("POST /api/reload-index", s.handleReload)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /audio/{file}", s.handleAudio)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error   string                `json:"error"`
	Missing []compose.MissingWord `json:"missing,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError maps err onto a status code and writes it as JSON.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorResponse{Error: err.Error()}

	var empty *compose.EmptyCompositionError
	var bad badRequest
	switch {
	case errors.As(err, &bad):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrNotReady):
		status = http.StatusServiceUnavailable
	case errors.As(err, &empty):
		status = http.StatusUnprocessableEntity
		body.Missing = empty.Missing
	}
	if status == http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		observe.Logger(r.Context()).Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

// badRequest marks client input errors.
type badRequest struct{ msg string }

func (b badRequest) Error() string { return b.msg }

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest{msg: "invalid request body: " + err.Error()}
	}
	return nil
}

// intParam parses a positive integer query or path value, falling back to
// def when raw is empty.
func intParam(name, raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest{msg: name + " must be a positive integer"}
	}
	return n, nil
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	return observe.Logger(r.Context())
}
