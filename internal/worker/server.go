// Package worker serves the local read-only status API for Review Gate.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/HexSleeves/Review-Gate/internal/db"
	"github.com/HexSleeves/Review-Gate/internal/speech"
	"github.com/HexSleeves/Review-Gate/internal/worker/sse"
)

// Service exposes session and conversation state over HTTP. It binds to
// loopback only and never mutates the store.
type Service struct {
	version string

	store     *db.Store
	sessions  *db.SessionStore
	convs     *db.ConversationStore
	speech    speech.Availability
	broadcast *sse.Broadcaster

	router    chi.Router
	server    *http.Server
	ready     atomic.Bool
	startTime time.Time
}

// NewService wires the status API over the shared store handles.
func NewService(version string, store *db.Store, avail speech.Availability, broadcast *sse.Broadcaster) *Service {
	svc := &Service{
		version:   version,
		store:     store,
		sessions:  db.NewSessionStore(store),
		convs:     db.NewConversationStore(store),
		speech:    avail,
		broadcast: broadcast,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// Broadcaster returns the event fan-out so other components can publish
// progress updates to connected status pages.
func (s *Service) Broadcaster() *sse.Broadcaster {
	return s.broadcast
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/sessions", s.handleSessions)
		r.Get("/api/conversations/{id}", s.handleConversation)
		r.Get("/events", s.broadcast.ServeHTTP)
	})
}

// requireReady rejects requests until the store has finished opening.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service starting")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves on 127.0.0.1:port until the context is cancelled. A port of
// zero disables the service entirely.
func (s *Service) Run(ctx context.Context, port int) error {
	if port == 0 {
		log.Debug().Msg("status service disabled")
		<-ctx.Done()
		return nil
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.ready.Store(true)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("status service listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("status service shutdown")
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status service: %w", err)
	}
}
