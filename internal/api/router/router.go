// Package router assembles the HTTP surface: public queue endpoints, the
// websocket endpoint, and the JWT-protected admin area.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-queue/internal/clinic"
	httpmiddleware "github.com/wolfman30/clinic-queue/internal/http/middleware"
	"github.com/wolfman30/clinic-queue/internal/queue"
	"github.com/wolfman30/clinic-queue/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	QueueHandler  *queue.Handler
	ClinicHandler *clinic.Handler
	WSHandler     http.Handler

	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Requests per second per IP on the self check-in endpoint. Zero
	// disables rate limiting.
	SelfCheckInRate  float64
	SelfCheckInBurst int
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

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.WSHandler != nil {
			public.Handle("/ws", cfg.WSHandler)
		}

		public.Route("/api", func(api chi.Router) {
			api.Post("/appointments", cfg.QueueHandler.BookAppointment)

			api.Route("/queue", func(q chi.Router) {
				q.Post("/check-in", cfg.QueueHandler.CheckIn)
				if cfg.SelfCheckInRate > 0 {
					q.With(httpmiddleware.RateLimit(cfg.SelfCheckInRate, cfg.SelfCheckInBurst)).
						Post("/self-check-in", cfg.QueueHandler.SelfCheckIn)
				} else {
					q.Post("/self-check-in", cfg.QueueHandler.SelfCheckIn)
				}
				q.Post("/entries/{entryID}/status", cfg.QueueHandler.UpdateStatus)
			})

			api.Get("/clinics/{clinicID}/queue", cfg.QueueHandler.GetSnapshot)
			api.Get("/stats/doctors", cfg.QueueHandler.DoctorStats)
		})
	})

	// Admin routes (protected by JWT)
	if cfg.AdminAuthSecret != "" && cfg.ClinicHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/clinics", func(c chi.Router) {
				c.Get("/", cfg.ClinicHandler.List)
				c.Post("/", cfg.ClinicHandler.Create)
				c.Get("/{clinicID}", cfg.ClinicHandler.Get)
				c.Put("/{clinicID}", cfg.ClinicHandler.Update)
			})
			admin.Get("/settings", cfg.ClinicHandler.GetSettings)
			admin.Put("/settings", cfg.ClinicHandler.UpdateSettings)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
