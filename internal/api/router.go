package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Service BookingService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(100, time.Minute))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment endpoints
	r.Post("/appointments", createAppointmentHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Put("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
	r.Put("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))

	// Portal reads
	r.Get("/patients/{id}/appointments", listPatientAppointmentsHandler(cfg.Service))
	r.Get("/doctors/{id}/slots", listDoctorSlotsHandler(cfg.Service))

	return r
}
