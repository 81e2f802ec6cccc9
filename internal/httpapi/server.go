// Package httpapi exposes the task store over JSON and server-sent events
// for browser front ends.
//
// Each authenticated caller gets a live store that follows the change
// stream; requests read from and write through that store.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tasktrack/internal/service"
	"tasktrack/internal/session"
	"tasktrack/internal/task"
	"tasktrack/internal/taskstore"
	"tasktrack/internal/workspace"
)

// DefaultMaxUpload caps multipart task creation requests.
const DefaultMaxUpload = 10 << 20

// Authenticator issues and checks bearer tokens.
type Authenticator interface {
	Register(ctx context.Context, email, password, fullName string) (service.User, string, error)
	Authenticate(ctx context.Context, email, password string) (service.User, string, error)
	Verify(token string) (service.User, error)
}

// Server is the HTTP API server.
type Server struct {
	ws        *workspace.Workspace
	auth      Authenticator
	files     http.Handler
	logger    *log.Logger
	maxUpload int64
	router    chi.Router

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	live   map[string]*workspace.Live
	closed bool
}

// Option configures a Server.
type Option func(*Server)

// WithFiles serves h under /files/, for blobs kept on local disk.
func WithFiles(h http.Handler) Option {
	return func(s *Server) { s.files = h }
}

// WithLogger sets the server logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxUpload sets the request size limit for task creation.
func WithMaxUpload(n int64) Option {
	return func(s *Server) { s.maxUpload = n }
}

// New creates a Server.
func New(ws *workspace.Workspace, auth Authenticator, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ws:        ws,
		auth:      auth,
		logger:    log.New(io.Discard, "", 0),
		maxUpload: DefaultMaxUpload,
		ctx:       ctx,
		cancel:    cancel,
		live:      make(map[string]*workspace.Live),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Post("/api/auth/signup", s.handleSignUp)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Post("/api/auth/logout", s.handleLogout)
		r.Get("/api/auth/me", s.handleMe)

		r.Get("/api/tasks", s.handleTaskList)
		r.Post("/api/tasks", s.handleTaskCreate)
		r.Get("/api/tasks/stream", s.handleTaskStream)
		r.Patch("/api/tasks/{id}", s.handleTaskUpdate)
		r.Post("/api/tasks/{id}/toggle", s.handleTaskToggle)
		r.Delete("/api/tasks/{id}", s.handleTaskDelete)
	})

	if s.files != nil {
		r.Handle("/files/*", http.StripPrefix("/files/", s.files))
	}
	s.router = r
}

// Close releases every live store. Later requests fail with 503.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	live := s.live
	s.live = make(map[string]*workspace.Live)
	s.mu.Unlock()

	s.cancel()
	for _, l := range live {
		l.Close()
	}
}

var errServerClosed = errors.New("server closed")

// storeFor returns the live store of userID, loading it on first use.
func (s *Server) storeFor(ctx context.Context, userID string) (*taskstore.Store, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errServerClosed
	}
	if l, ok := s.live[userID]; ok {
		s.mu.Unlock()
		return l.Store(), nil
	}
	s.mu.Unlock()

	l, err := s.ws.Follow(s.ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return nil, errServerClosed
	}
	if existing, ok := s.live[userID]; ok {
		// Another request loaded it first.
		s.mu.Unlock()
		l.Close()
		return existing.Store(), nil
	}
	s.live[userID] = l
	s.mu.Unlock()
	return l.Store(), nil
}

// release drops the live store of userID.
func (s *Server) release(userID string) {
	s.mu.Lock()
	l, ok := s.live[userID]
	delete(s.live, userID)
	s.mu.Unlock()
	if ok {
		l.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, logger *log.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("httpapi: write json: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, s.logger, status, map[string]string{"error": msg})
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, task.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, task.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrAccountExists):
		status = http.StatusConflict
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, errServerClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusBadGateway {
		s.logger.Printf("httpapi: %v", err)
	}
	s.writeError(w, status, err.Error())
}
