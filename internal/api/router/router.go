package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/clinicdesk/navbat/internal/http/middleware"
	"github.com/clinicdesk/navbat/internal/queue"
	"github.com/clinicdesk/navbat/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Queue              *queue.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Queue service interface, consumed by reception, doctor rooms, the
	// public display and kiosk terminals.
	r.Route("/queue", func(q chi.Router) {
		q.Post("/join", cfg.Queue.Join)
		q.Get("/current", cfg.Queue.Current)
		q.Get("/stats", cfg.Queue.Stats)
		q.Get("/my-position", cfg.Queue.MyPosition)
		q.Delete("/clear-old", cfg.Queue.ClearOld)

		q.Route("/{id}", func(entry chi.Router) {
			entry.Put("/call", cfg.Queue.Call)
			entry.Put("/start", cfg.Queue.Start)
			entry.Put("/complete", cfg.Queue.Complete)
			entry.Put("/cancel", cfg.Queue.Cancel)
			entry.Put("/priority", cfg.Queue.ChangePriority)
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
