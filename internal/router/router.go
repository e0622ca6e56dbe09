package router

import (
	"net/http"

	"restack-guard/internal/handler"
	"restack-guard/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the handlers the router mounts.
type Config struct {
	Handler        *handler.Handler
	ScannerHandler *handler.ScannerHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			if cfg.ScannerHandler != nil {
				r.Route("/scanner", func(r chi.Router) {
					r.Get("/status", cfg.ScannerHandler.GetStatus)
					r.Get("/results", cfg.ScannerHandler.GetResults)
					r.Post("/authenticate", cfg.ScannerHandler.Authenticate)
					r.Post("/start", cfg.ScannerHandler.Start)
					r.Post("/stop", cfg.ScannerHandler.Stop)
					r.Post("/scan", cfg.ScannerHandler.Scan)
				})
			}

			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/state/{set}", cfg.AdminHandler.GetStateMembers)
				})
			}
		})
	})

	return r
}
