package planapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/fitmarket/coachplans/pkg/coachplan"
	"github.com/fitmarket/coachplans/pkg/httpserver"
	"github.com/fitmarket/coachplans/pkg/logger"
	"github.com/fitmarket/coachplans/pkg/requestid"
)

// HeaderCoachID carries the authenticated coach id set by the API gateway.
const HeaderCoachID = "X-Coach-ID"

// CoachResolver extracts the authenticated coach from a request.
type CoachResolver func(r *http.Request) (uuid.UUID, error)

// HeaderCoachResolver trusts a coach id header set by an upstream
// authenticating proxy.
func HeaderCoachResolver(header string) CoachResolver {
	return func(r *http.Request) (uuid.UUID, error) {
		id, err := uuid.Parse(r.Header.Get(header))
		if err != nil || id == uuid.Nil {
			return uuid.Nil, errUnauthorized
		}
		return id, nil
	}
}

// NotificationResolver turns a payment provider notification into a plan
// event by reading the referenced resource back from the provider.
type NotificationResolver interface {
	ResolveNotification(ctx context.Context, topic, id string) (*coachplan.PaymentEvent, error)
}

// API serves the coach plan endpoints.
type API struct {
	svc           *coachplan.Service
	resolveCoach  CoachResolver
	notifications NotificationResolver
	log           *slog.Logger
	locale        language.Tag
	checks        []httpserver.Check
	readyTimeout  time.Duration
}

type Option func(*API)

func WithCoachResolver(fn CoachResolver) Option {
	return func(a *API) {
		if fn != nil {
			a.resolveCoach = fn
		}
	}
}

// WithNotifications mounts the payment webhook backed by r.
func WithNotifications(r NotificationResolver) Option {
	return func(a *API) { a.notifications = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// WithLocale sets the locale used for formatted prices.
func WithLocale(tag language.Tag) Option {
	return func(a *API) { a.locale = tag }
}

// WithReadinessChecks registers dependency probes for /health/ready.
func WithReadinessChecks(timeout time.Duration, checks ...httpserver.Check) Option {
	return func(a *API) {
		a.readyTimeout = timeout
		a.checks = append(a.checks, checks...)
	}
}

// New creates the API. Panics if svc is nil.
func New(svc *coachplan.Service, opts ...Option) *API {
	if svc == nil {
		panic("planapi: coachplan service is required")
	}
	a := &API{
		svc:          svc,
		resolveCoach: HeaderCoachResolver(HeaderCoachID),
		log:          logger.Discard(),
		locale:       language.BrazilianPortuguese,
		readyTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(logger.Component("planapi"))
	return a
}

// Handler returns the router with every route mounted.
//
//	GET    /plans
//	GET    /me/plan
//	POST   /me/plan
//	DELETE /me/plan/pending
//	GET    /me/entitlements
//	POST   /webhooks/mercadopago   (only with WithNotifications)
//	GET    /health/live
//	GET    /health/ready
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(a.log, a.readyTimeout, a.checks...))

	r.Get("/plans", a.listTiers)

	r.Route("/me", func(me chi.Router) {
		me.Get("/plan", a.withCoach(a.readPlan))
		me.Post("/plan", a.withCoach(a.changePlan))
		me.Delete("/plan/pending", a.withCoach(a.cancelPending))
		me.Get("/entitlements", a.withCoach(a.entitlements))
	})

	if a.notifications != nil {
		r.Post("/webhooks/mercadopago", a.paymentWebhook)
	}

	return r
}

type coachHandler func(w http.ResponseWriter, r *http.Request, coachID uuid.UUID)

func (a *API) withCoach(next coachHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coachID, err := a.resolveCoach(r)
		if err != nil {
			writeError(w, r, a.log, errUnauthorized)
			return
		}
		next(w, r, coachID)
	}
}
