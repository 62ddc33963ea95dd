// Package router assembles the HTTP surface of the scheduling engine.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vidaclinic/scheduling-engine/internal/appointments"
	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	httpmiddleware "github.com/vidaclinic/scheduling-engine/internal/http/middleware"
	"github.com/vidaclinic/scheduling-engine/internal/maintenance"
	"github.com/vidaclinic/scheduling-engine/internal/rooms"
	"github.com/vidaclinic/scheduling-engine/internal/schedule"
	"github.com/vidaclinic/scheduling-engine/internal/slots"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	SlotsHandler        *slots.Handler
	BlocksHandler       *blocks.Handler
	MaintenanceHandler  *maintenance.Handler
	AppointmentsHandler *appointments.Handler
	ScheduleHandler     *schedule.Handler
	RoomsHandler        *rooms.Handler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	HealthCheck         func() error
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
	r.Use(httpmiddleware.Actor())

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/providers/{providerID}", func(provider chi.Router) {
			if cfg.SlotsHandler != nil {
				cfg.SlotsHandler.RegisterRoutes(provider)
			}
			if cfg.BlocksHandler != nil {
				cfg.BlocksHandler.RegisterRoutes(provider)
			}
			if cfg.ScheduleHandler != nil {
				cfg.ScheduleHandler.RegisterRoutes(provider)
			}
			if cfg.AppointmentsHandler != nil {
				cfg.AppointmentsHandler.RegisterProviderRoutes(provider)
			}
		})
		if cfg.MaintenanceHandler != nil {
			api.Route("/blocks", cfg.MaintenanceHandler.RegisterRoutes)
		}
		if cfg.AppointmentsHandler != nil {
			api.Route("/appointments", cfg.AppointmentsHandler.RegisterRoutes)
		}
		if cfg.RoomsHandler != nil {
			api.Route("/rooms", cfg.RoomsHandler.RegisterRoutes)
		}
	})

	return r
}

func healthHandler(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			if err := check(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
