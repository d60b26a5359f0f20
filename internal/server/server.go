package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/sota-6741/gemini-auto-refactor/internal/broadcast"
	"github.com/sota-6741/gemini-auto-refactor/internal/core"
	"github.com/sota-6741/gemini-auto-refactor/internal/history"
)

//go:embed web/index.html
var webFS embed.FS

// SessionLister exposes per-file session state.
type SessionLister interface {
	Sessions() []core.SessionInfo
}

// JobLister exposes recent job history.
type JobLister interface {
	Recent(ctx context.Context, limit int) ([]history.Job, error)
}

// ChainVerifier checks the audit ledger.
type ChainVerifier interface {
	VerifyChain() error
	Len() int
}

// Settings configures the HTTP listener and page delivery.
type Settings struct {
	Addr      string
	Template  string
	StaticDir string
}

// Server serves the index page, the WebSocket feed and a small JSON API.
type Server struct {
	settings Settings
	hub      *broadcast.Hub
	sessions SessionLister
	jobs     JobLister
	ledger   ChainVerifier
	log      logrus.FieldLogger
	clock    func() time.Time

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

func WithSessions(s SessionLister) Option { return func(srv *Server) { srv.sessions = s } }
func WithJobs(j JobLister) Option         { return func(srv *Server) { srv.jobs = j } }
func WithLedger(v ChainVerifier) Option   { return func(srv *Server) { srv.ledger = v } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.log = l
		}
	}
}

// New prepares a server around hub.
func New(settings Settings, hub *broadcast.Hub, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		hub:      hub,
		log:      logrus.StandardLogger(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.hub.ServeWS)
	if s.settings.StaticDir != "" {
		if info, err := os.Stat(s.settings.StaticDir); err == nil && info.IsDir() {
			r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.settings.StaticDir))))
		}
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.handleSessions)
		r.Get("/jobs", s.handleJobs)
		r.Get("/ledger/verify", s.handleVerifyLedger)
	})
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("server: already started")
	}
	listener, err := net.Listen("tcp", s.settings.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.settings.Addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.server
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http serve error")
		}
	}()
	s.log.WithField("addr", listener.Addr().String()).Info("http server listening")
	return nil
}

// Shutdown stops accepting connections and waits for handlers to exit.
// WebSocket handlers exit once the hub closes their connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.settings.Template != "" {
		if data, err := os.ReadFile(s.settings.Template); err == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write(data)
			return
		}
	}
	data, err := webFS.ReadFile("web/index.html")
	if err != nil {
		http.Error(w, "index page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

type healthResponse struct {
	Status        string `json:"status"`
	Observers     int    `json:"observers"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	started := s.startTime
	s.mu.RUnlock()
	var uptime int64
	if !started.IsZero() {
		uptime = int64(s.clock().Sub(started).Seconds())
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Observers: s.hub.Count(), UptimeSeconds: uptime})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusOK, []core.SessionInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Sessions())
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job history disabled"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	jobs, err := s.jobs.Recent(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("cannot list jobs")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cannot list jobs"})
		return
	}
	if jobs == nil {
		jobs = []history.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit ledger disabled"})
		return
	}
	if err := s.ledger.VerifyChain(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"status": "tampered", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "blocks": s.ledger.Len()})
}
