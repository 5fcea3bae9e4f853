// Package server exposes the pipeline over HTTP: a synchronous run endpoint,
// report listing and lifecycle, a streaming chat endpoint (SSE), and a health
// probe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/telcowatch/telcowatch/chat"
	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
	"github.com/telcowatch/telcowatch/orchestrator"
	"github.com/telcowatch/telcowatch/store"
)

// Server wires the HTTP API to the orchestrator, report store and chat
// supervisor.
type Server struct {
	orch       *orchestrator.Orchestrator
	reports    core.ReportStore
	supervisor *chat.Supervisor
	log        logging.Logger
	mux        *http.ServeMux
}

// New constructs the Server and registers its routes.
func New(orch *orchestrator.Orchestrator, reports core.ReportStore, supervisor *chat.Supervisor, log logging.Logger) *Server {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	s := &Server{
		orch:       orch,
		reports:    reports,
		supervisor: supervisor,
		log:        log,
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/pipeline/run", s.handleRunPipeline)
	s.mux.HandleFunc("GET /api/reports", s.handleListReports)
	s.mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	s.mux.HandleFunc("POST /api/reports/{id}/archive", s.handleArchiveReport)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs the server on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type runRequest struct {
	UserRef string   `json:"user_ref"`
	Domains []string `json:"domains"`
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.UserRef == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("user_ref is required"))
		return
	}

	result, err := s.orch.Run(r.Context(), req.UserRef, req.Domains)
	if err != nil {
		s.writeError(w, statusForErr(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	filter := core.ReportFilter{
		UserRef: r.URL.Query().Get("user_ref"),
		Status:  core.RunStatus(r.URL.Query().Get("status")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if _, err := fmt.Sscanf(limit, "%d", &filter.Limit); err != nil || filter.Limit < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", limit))
			return
		}
	}

	runs, err := s.reports.ListReports(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []core.PipelineRun{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reports": runs})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	run, err := s.reports.GetReport(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleArchiveReport(w http.ResponseWriter, r *http.Request) {
	err := s.reports.ArchiveReport(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type chatRequest struct {
	Messages []model.Message `json:"messages"`
	// Message is a single-turn shorthand for clients without history.
	Message string `json:"message,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	messages := req.Messages
	if len(messages) == 0 && req.Message != "" {
		messages = []model.Message{{Role: "user", Text: req.Message}}
	}
	if len(messages) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("at least one message is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	route, chunks, errCh := s.supervisor.Stream(r.Context(), messages)
	s.log.Debug("chat dispatched", "route", string(route))
	for chunk := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}
	if err := <-errCh; err != nil {
		s.log.Error("chat stream failed", "error", err.Error())
		fmt.Fprintf(w, "data: %s\n\n", "[ERROR]")
		flusher.Flush()
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForErr maps taxonomy kinds onto HTTP statuses.
func statusForErr(err error) int {
	switch core.KindOf(err) {
	case core.KindInvalidRequest:
		return http.StatusBadRequest
	case core.KindRateLimited:
		return http.StatusTooManyRequests
	case core.KindSearchUnavailable, core.KindProviderTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
