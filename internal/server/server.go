// Package server exposes a [session.Controller] over HTTP so thin UI adapters
// (a hotkey daemon, a browser page, a menu-bar app) can drive captures and
// render state without linking the Go packages.
//
// Routes:
//
//	POST   /v1/capture/{direction}  begin capturing (direction: source_to_target | target_to_source)
//	DELETE /v1/capture              end the current capture
//	POST   /v1/translate            translate typed text: {"direction": ..., "text": ...}
//	PUT    /v1/mute                 {"muted": true|false}
//	GET    /v1/state                current state snapshot
//	GET    /v1/history?limit=N      most recent translations, newest first
//	GET    /v1/events               WebSocket: one snapshot, then every update
//
// Error responses are JSON objects {"error": "...", "kind": "..."} where kind
// is the session error kind, if any.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/lingobridge/internal/health"
	"github.com/MrWong99/lingobridge/internal/history"
	"github.com/MrWong99/lingobridge/internal/observe"
	"github.com/MrWong99/lingobridge/internal/session"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	maxBodyBytes        = 64 << 10
	writeTimeout        = 5 * time.Second
)

// Controller is the part of [session.Controller] the server drives.
type Controller interface {
	BeginCapture(ctx context.Context, d session.Direction) error
	EndCapture()
	Translate(ctx context.Context, d session.Direction, text string) (string, error)
	SetMuted(muted bool)
	Snapshot() session.State
	Subscribe() (<-chan session.Update, func())
	Pair() session.LanguagePair
}

var _ Controller = (*session.Controller)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithHistory serves GET /v1/history from store.
func WithHistory(store history.Store) Option {
	return func(s *Server) { s.history = store }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics sets the metrics used by the request middleware.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server routes HTTP requests to a controller.
type Server struct {
	ctrl           Controller
	history        history.Store
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	log            *slog.Logger
}

// New returns a server for ctrl.
func New(ctrl Controller, opts ...Option) *Server {
	s := &Server{ctrl: ctrl}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "server")
	return s
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/capture/{direction}", s.beginCapture)
	mux.HandleFunc("DELETE /v1/capture", s.endCapture)
	mux.HandleFunc("POST /v1/translate", s.translate)
	mux.HandleFunc("PUT /v1/mute", s.mute)
	mux.HandleFunc("GET /v1/state", s.state)
	mux.HandleFunc("GET /v1/history", s.recent)
	mux.HandleFunc("GET /v1/events", s.events)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

func (s *Server) beginCapture(w http.ResponseWriter, r *http.Request) {
	d, err := session.ParseDirection(r.PathValue("direction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctrl.BeginCapture(r.Context(), d); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) endCapture(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.EndCapture()
	writeJSON(w, http.StatusAccepted, s.ctrl.Snapshot())
}

type translateRequest struct {
	Direction *session.Direction `json:"direction"`
	Text      string             `json:"text"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

func (s *Server) translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Direction == nil {
		writeError(w, http.StatusBadRequest, errors.New(`"direction" is required`))
		return
	}
	out, err := s.ctrl.Translate(r.Context(), *req.Direction, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{TranslatedText: out})
}

type muteRequest struct {
	Muted *bool `json:"muted"`
}

func (s *Server) mute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Muted == nil {
		writeError(w, http.StatusBadRequest, errors.New(`"muted" is required`))
		return
	}
	s.ctrl.SetMuted(*req.Muted)
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) recent(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("translation history is disabled"))
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	exchanges, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.log.Warn("listing translation history", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("history unavailable"))
		return
	}
	if exchanges == nil {
		exchanges = []history.Exchange{}
	}
	writeJSON(w, http.StatusOK, exchanges)
}

// Event is one message on the /v1/events stream. The first event of a
// connection has Type "snapshot"; later ones have Type "update" and name the
// changed field.
type Event struct {
	Type  string        `json:"type"`
	Field string        `json:"field,omitempty"`
	State session.State `json:"state"`
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	updates, cancel := s.ctrl.Subscribe()
	defer cancel()

	// Clients never send; CloseRead handles their close frame.
	ctx := conn.CloseRead(r.Context())

	if err := s.send(ctx, conn, Event{Type: "snapshot", State: s.ctrl.Snapshot()}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "controller closed")
				return
			}
			if err := s.send(ctx, conn, Event{Type: "update", Field: u.Field.String(), State: u.State}); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, ev); err != nil {
		s.log.Debug("event stream closed", "err", err)
		return err
	}
	return nil
}

// fail maps a controller error to a status code.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Warn("request failed", "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrTranslationNotReady),
		errors.Is(err, session.ErrRecognizerUnavailable),
		errors.Is(err, session.ErrAudioEngine),
		errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrTranslation):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

type errorBody struct {
	Error string            `json:"error"`
	Kind  session.ErrorKind `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: session.KindOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
