package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Web5design/MediaCrusher/internal/api/handler"
	mw "github.com/Web5design/MediaCrusher/internal/api/middleware"
)

// NewRouter creates the HTTP router for the bot's status API.
func NewRouter(statusHandler *handler.StatusHandler, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health endpoints (no auth)
	r.Get("/health", statusHandler.Live)
	r.Get("/ready", statusHandler.Ready)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Get("/stats", statusHandler.Stats)
		r.Get("/replies", statusHandler.Replies)
	})

	return r
}
