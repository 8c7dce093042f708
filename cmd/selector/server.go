package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-round-selector/internal/domain"
	"solana-round-selector/internal/observability"
	"solana-round-selector/internal/round"
	"solana-round-selector/internal/storage"
)

// sourceLister reports registered sources and their health.
type sourceLister interface {
	Sources() []domain.SourceReport
}

// Server exposes round status, stored audits and manual round triggers.
type Server struct {
	runner       *round.Runner
	sources      sourceLister
	audits       storage.AuditStore
	roundTimeout time.Duration
	logger       *zap.Logger
	newRoundID   func() string

	mu      sync.Mutex
	started time.Time
	rounds  int
	skipped int
}

// NewServer creates a server over the runner and its stores.
func NewServer(runner *round.Runner, sources sourceLister, audits storage.AuditStore, roundTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		runner:       runner,
		sources:      sources,
		audits:       audits,
		roundTimeout: roundTimeout,
		logger:       logger.Named("server"),
		newRoundID:   uuid.NewString,
		started:      time.Now(),
	}
}

// RunRound runs one round unless another is in flight. An empty roundID is generated.
func (s *Server) RunRound(ctx context.Context, roundID string) (*round.Result, error) {
	if roundID == "" {
		roundID = s.newRoundID()
	}
	if s.roundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.roundTimeout)
		defer cancel()
	}

	res, err := s.runner.TryRun(ctx, roundID)

	s.mu.Lock()
	if errors.Is(err, round.ErrRoundInProgress) {
		s.skipped++
	} else {
		s.rounds++
	}
	s.mu.Unlock()

	switch {
	case errors.Is(err, round.ErrRoundInProgress):
		s.logger.Warn("round skipped, previous round still running", zap.String("round_id", roundID))
	case err != nil:
		s.logger.Warn("round failed", zap.String("round_id", roundID), zap.Error(err))
	default:
		s.logger.Info("round finished",
			zap.String("round_id", roundID),
			zap.String("status", res.Status),
			zap.String("chosen_mint", res.Audit.ChosenMint))
	}
	return res, err
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", observability.Handler())
	r.Get("/status", s.handleStatus)
	r.Get("/audits/{roundID}", s.handleAudit)
	r.Post("/rounds", s.handleRun)
	return r
}

// ListenAndServe serves Routes on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type sourceStatus struct {
	Name   string `json:"name"`
	Health string `json:"health"`
}

type statusResponse struct {
	Status    string         `json:"status"`
	Uptime    string         `json:"uptime"`
	Rounds    int            `json:"rounds"`
	Skipped   int            `json:"skipped"`
	Sources   []sourceStatus `json:"sources"`
	LastRound *round.Result  `json:"last_round,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := statusResponse{
		Status:  "running",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Rounds:  s.rounds,
		Skipped: s.skipped,
	}
	s.mu.Unlock()

	for _, src := range s.sources.Sources() {
		resp.Sources = append(resp.Sources, sourceStatus{Name: src.Name, Health: src.Health.String()})
	}
	resp.LastRound = s.runner.Last()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "roundID")

	audit, err := s.audits.GetByRoundID(r.Context(), roundID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "audit not found")
		return
	case err != nil:
		s.logger.Error("load audit", zap.String("round_id", roundID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load audit")
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

// handleRun triggers a round. The optional round_id query parameter names it.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.RunRound(r.Context(), r.URL.Query().Get("round_id"))
	switch {
	case errors.Is(err, round.ErrRoundInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case res == nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		// A finished round reports its own status, including no_candidates and friends.
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
