package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/whatsapp-companion/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/whatsapp-companion/internal/http/middleware"
	"github.com/wolfman30/whatsapp-companion/pkg/logging"
)

// WebhookHandler serves the WhatsApp webhook endpoints.
type WebhookHandler interface {
	HandleVerification(w http.ResponseWriter, r *http.Request)
	HandleWebhook(w http.ResponseWriter, r *http.Request)
}

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WhatsApp       WebhookHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WhatsApp != nil {
			public.Get("/webhook", cfg.WhatsApp.HandleVerification)
			public.Post("/webhook", cfg.WhatsApp.HandleWebhook)
		}
	})

	return r
}
