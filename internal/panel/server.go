package panel

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/ruleflow/internal/expressions"
	"github.com/rendis/ruleflow/internal/scheduler"
	"github.com/rendis/ruleflow/internal/store"
	"github.com/rendis/ruleflow/internal/streaming"
	"github.com/rendis/ruleflow/internal/validation"
)

// Deps holds the dependencies for the panel server.
type Deps struct {
	Store     store.Store
	Hub       streaming.EventHub
	Previewer *expressions.Previewer
	Validator validation.Validator
	Refresher *scheduler.Refresher // optional; sessions auto-refresh when set
	Logger    *slog.Logger
}

// Server exposes the diagram JSON API and per-session SSE streams consumed
// by the rendering substrate.
type Server struct {
	deps     Deps
	sessions *sessionRegistry
}

// NewServer creates a panel server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return &Server{
		deps:     deps,
		sessions: newSessionRegistry(deps),
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Session lifecycle.
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	// Session state and mutations.
	mux.HandleFunc("POST /api/sessions/{id}/load", s.handleLoadSubject)
	mux.HandleFunc("POST /api/sessions/{id}/toggle", s.handleToggleGroup)
	mux.HandleFunc("POST /api/sessions/{id}/select", s.handleSelectRule)
	mux.HandleFunc("POST /api/sessions/{id}/filter", s.handleSetFilter)
	mux.HandleFunc("GET /api/sessions/{id}/diagram", s.handleDiagram)
	mux.HandleFunc("GET /api/sessions/{id}/state", s.handleState)

	// Subjects and rule scripts.
	mux.HandleFunc("GET /api/subjects", s.handleListSubjects)
	mux.HandleFunc("GET /api/subjects/recent", s.handleRecentSubjects)
	mux.HandleFunc("DELETE /api/subjects/recent/{name}", s.handleDeleteRecentSubject)
	mux.HandleFunc("GET /api/rules/{id}/script", s.handleRuleScript)

	// Import and expression tooling.
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("POST /api/preview/condition", s.handlePreviewCondition)
	mux.HandleFunc("POST /api/preview/filter", s.handlePreviewFilter)
	mux.HandleFunc("POST /api/project", s.handleProject)

	// SSE streams.
	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/sessions/{id}", s.handleSSESession)

	return mux
}
