// Package server exposes the trial controller over a local HTTP bridge. The
// browser side keeps no state of its own; every panel render starts with
// GET /api/state and every user action is one POST.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/tmoreaux/detectlab/internal/eval"
	"github.com/tmoreaux/detectlab/internal/eventlog"
	"github.com/tmoreaux/detectlab/internal/llm"
	"github.com/tmoreaux/detectlab/internal/session"
	"github.com/tmoreaux/detectlab/internal/store"
)

// Server wires the controller and the event log behind the HTTP API.
type Server struct {
	controller *session.Controller
	store      store.Store
	events     *eventlog.Logger
	log        *zap.Logger
}

// New builds a server around an assembled controller.
func New(controller *session.Controller, st store.Store, events *eventlog.Logger) *Server {
	return &Server{
		controller: controller,
		store:      st,
		events:     events,
		log:        zap.L().Named("server"),
	}
}

// Router assembles the chi mux. allowedOrigins restricts CORS to the
// extension origin(s); an empty list allows any origin, which is acceptable
// for a loopback-only research instrument.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/navigation", s.handleNavigation)
		r.Post("/trials/start", s.handleTrialStart)
		r.Post("/posts/edited", s.handlePostEdited)
		r.Post("/context", s.handleContext)
		r.Post("/extract", s.handleExtract)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/text", s.handleText)
		r.Post("/decision", s.handleDecision)
		r.Post("/reset", s.handleReset)
		r.Put("/settings", s.handleSettings)
		r.Get("/logs/export", s.handleLogsExport)
		r.Get("/logs/count", s.handleLogsCount)
		r.Delete("/logs", s.handleLogsClear)
	})

	return r
}

// ListenAndServe runs the bridge until ctx is cancelled, then drains with a
// short grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string, allowedOrigins []string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(allowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("bridge listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// writeError maps controller failures onto the API's status codes. A busy
// controller and a missing precondition are client-visible conditions with
// their own codes; transport and parse failures already landed in the
// persisted state, so the caller polls /api/state for them.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrBusy):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case session.IsMissingPrecondition(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case llm.IsTransport(err), eval.IsParse(err):
		writeJSON(w, http.StatusOK, statusBody{Status: "error", Error: err.Error()})
	default:
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

type statusBody struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
