package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
	"github.com/ovo-bot/ovo-agent/internal/service"
)

// Admin is the operator-facing view of the agent
type Admin interface {
	Health() service.Health
	ListGroups(ctx context.Context) ([]service.GroupView, error)
	SetGroupEnabled(ctx context.Context, groupID string, enabled bool) error
	GetUser(ctx context.Context, userID string) (*service.UserView, error)
}

// Server is the admin HTTP server
type Server struct {
	admin  Admin
	mcp    http.Handler
	logger *slog.Logger

	server *http.Server
	addr   string
}

// SetGroupRequest is the body of PUT /api/groups/{id}
type SetGroupRequest struct {
	Enabled *bool `json:"enabled"`
}

// NewServer creates a new API server. mcpHandler may be nil.
func NewServer(admin Admin, mcpHandler http.Handler, addr string, logger *slog.Logger) *Server {
	return &Server{
		admin:  admin,
		mcp:    mcpHandler,
		addr:   addr,
		logger: logger.With("component", "api"),
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Group switches
	mux.HandleFunc("GET /api/groups", s.handleListGroups)
	mux.HandleFunc("PUT /api/groups/{id}", s.handleSetGroup)

	// Live user state
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)

	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}
	return mux
}

// Start listens and serves until Stop is called
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ============ Handlers ============

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.admin.Health())
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.admin.ListGroups(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handleSetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	var req SetGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "enabled is required", http.StatusBadRequest)
		return
	}

	if err := s.admin.SetGroupEnabled(r.Context(), groupID, *req.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("group setting changed", "group", groupID, "enabled", *req.Enabled)
	s.writeJSON(w, http.StatusOK, map[string]any{"group_id": groupID, "enabled": *req.Enabled})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.admin.GetUser(r.Context(), r.PathValue("id"))
	if errors.Is(err, repo.ErrNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Warn("request failed", "error", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
