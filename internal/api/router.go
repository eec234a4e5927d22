package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campushours/booking-engine/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Log     *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Get("/slots", listSlotsHandler(svc))
		r.Put("/policy", putPolicyHandler(svc))
		r.Put("/availability-rules", putRulesHandler(svc))
		r.Put("/availability-exceptions", putExceptionsHandler(svc))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", submitAppointmentHandler(svc))
		r.Get("/", listAppointmentsHandler(svc))
		r.Get("/{id}", getAppointmentHandler(svc))
		r.Post("/{id}/accept", transitionHandler(func(req *http.Request, id, actorID uuid.UUID) (*booking.Appointment, error) {
			return svc.Accept(req.Context(), id, actorID)
		}))
		r.Post("/{id}/decline", transitionHandler(func(req *http.Request, id, actorID uuid.UUID) (*booking.Appointment, error) {
			return svc.Decline(req.Context(), id, actorID)
		}))
		r.Post("/{id}/cancel", transitionHandler(func(req *http.Request, id, actorID uuid.UUID) (*booking.Appointment, error) {
			return svc.Cancel(req.Context(), id, actorID)
		}))
		r.Post("/{id}/complete", transitionHandler(func(req *http.Request, id, actorID uuid.UUID) (*booking.Appointment, error) {
			return svc.Complete(req.Context(), id, actorID)
		}))
		r.Post("/{id}/no-show", transitionHandler(func(req *http.Request, id, actorID uuid.UUID) (*booking.Appointment, error) {
			return svc.MarkNoShow(req.Context(), id, actorID)
		}))
		r.Post("/{id}/reschedule", rescheduleHandler(svc))
	})

	return r
}
