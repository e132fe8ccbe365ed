package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the read-only HTTP routes.
func NewRouter(logger *slog.Logger, uGame uGame) http.Handler {
	h := NewHandlers(logger, uGame)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/ping", h.Ping)
	router.Route("/games/{id}", func(r chi.Router) {
		r.Get("/", h.Game)
		r.Get("/moves", h.LegalMoves)
		r.Get("/board", h.Board)
	})

	return router
}

// Start serves the routes until ctx is cancelled.
func Start(ctx context.Context, logger *slog.Logger, uGame uGame, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(logger, uGame),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
