package router

import (
	"meli-stock-audit/internal/handler"
	"meli-stock-audit/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	WebhookHandler *handler.WebhookHandler
	OAuthHandler   *handler.OAuthHandler
	AdminHandler   *handler.AdminHandler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes: the marketplace calls these directly.
	if cfg.WebhookHandler != nil {
		r.Post("/webhook", cfg.WebhookHandler.Receive)
	}
	if cfg.OAuthHandler != nil {
		r.Get("/oauth/callback", cfg.OAuthHandler.Callback)
	}
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Get("/queue", cfg.AdminHandler.GetQueueStats)
				r.Get("/alerts", cfg.AdminHandler.GetAlerts)
				r.Post("/audit", cfg.AdminHandler.StartAudit)
				r.Get("/audit", cfg.AdminHandler.GetAuditStatus)
				r.Post("/webhook", cfg.AdminHandler.RegisterWebhook)
				r.Post("/feeds", cfg.AdminHandler.RecoverFeeds)
				r.Put("/items/{item_id}/stock", cfg.AdminHandler.UpdateStock)
				r.Get("/catalog", cfg.AdminHandler.GetCatalog)
				r.Get("/report", cfg.AdminHandler.GetReport)
			})
		}
	})

	return r
}
