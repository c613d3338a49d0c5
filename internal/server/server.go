package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bowerhall/partscout/internal/agent"
	"github.com/bowerhall/partscout/internal/apperr"
	"github.com/bowerhall/partscout/internal/budget"
	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/internal/storage"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

const maxBodyBytes = 64 << 10

type Server struct {
	svc     *agent.Service
	catalog *partsdb.Store
	budget  *budget.Tracker
	archive *storage.Client
	started time.Time
	http    *http.Server
}

type Option func(*Server)

// WithCatalog reports catalog reachability on /health.
func WithCatalog(store *partsdb.Store) Option {
	return func(s *Server) { s.catalog = store }
}

func WithBudget(t *budget.Tracker) Option {
	return func(s *Server) { s.budget = t }
}

func WithArchive(c *storage.Client) Option {
	return func(s *Server) { s.archive = c }
}

func New(addr string, svc *agent.Service, opts ...Option) *Server {
	s := &Server{svc: svc, started: time.Now()}
	for _, opt := range opts {
		opt(s)
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: streamed turns are bounded by the agent's turn timeout
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleStream)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleReset)
	return mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("server shutting down")
	return s.http.Shutdown(shutdownCtx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.svc.Handle(r.Context(), req)
	if err != nil {
		writeTurnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session id required"})
		return
	}

	if err := s.svc.Reset(r.Context(), id); err != nil {
		logger.Error("session reset failed", "session", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reset failed"})
		return
	}

	logger.Info("session reset", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (agent.Request, bool) {
	var req agent.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return req, false
	}
	return req, true
}

// writeTurnError maps a failed turn to a status. Only invalid requests are
// the caller's fault; a gone client gets nothing.
func writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidArguments):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case r.Context().Err() != nil:
		logger.Debug("client went away", "error", err)
	default:
		logger.Error("turn failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response failed", "error", err)
	}
}
