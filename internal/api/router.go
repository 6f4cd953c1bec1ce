package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/practiceops/clinic-scheduling/internal/allocator"
	"github.com/practiceops/clinic-scheduling/internal/config"
	"github.com/practiceops/clinic-scheduling/internal/flow"
	"github.com/practiceops/clinic-scheduling/internal/schedule"
	"github.com/practiceops/clinic-scheduling/internal/waitlist"
)

type RouterConfig struct {
	Schedule     *schedule.Service
	Availability *schedule.AvailabilityEngine
	Waitlist     *waitlist.Service
	Flow         *flow.Service
	Allocator    *allocator.Allocator
	AllocateOn   config.AllocateOn
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints are the only routes outside tenant scoping.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(ClinicMiddleware)

		r.Post("/appointments", createAppointmentHandler(cfg.Schedule))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Schedule))
		r.Post("/appointments/{id}/transition", transitionAppointmentHandler(cfg.Schedule, cfg.Allocator, cfg.AllocateOn))

		r.Get("/calendar", calendarHandler(cfg.Schedule, cfg.Availability))

		r.Post("/waitlist", createWaitlistEntryHandler(cfg.Waitlist))
		r.Get("/waitlist/{id}", getWaitlistEntryHandler(cfg.Waitlist))
		r.Delete("/waitlist/{id}", withdrawWaitlistEntryHandler(cfg.Waitlist))
		r.Post("/waitlist/{id}/offers/{offerID}/accept", acceptOfferHandler(cfg.Waitlist))
		r.Post("/waitlist/{id}/withdraw", withdrawWaitlistEntryHandler(cfg.Waitlist))

		r.Post("/visits", createVisitHandler(cfg.Flow))
		r.Get("/visits/{id}", getVisitHandler(cfg.Flow))
		r.Post("/visits/{id}/transition", transitionVisitHandler(cfg.Flow))
		r.Get("/queue", queueHandler(cfg.Flow))
	})

	return r
}
