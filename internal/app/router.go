package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-florist/internal/auth"
	"github.com/noah-isme/backend-florist/internal/cart"
	"github.com/noah-isme/backend-florist/internal/health"
	"github.com/noah-isme/backend-florist/internal/obs"
	"github.com/noah-isme/backend-florist/internal/ratelimit"
	"github.com/noah-isme/backend-florist/internal/security"
)

// Router holds everything the HTTP surface is built from. Nil optional
// parts (metrics, limiter, pprof) are left out of the chain.
type Router struct {
	Logger zerolog.Logger
	Cart   *cart.Handler
	Auth   auth.Middleware
	// RequirePricingAuth rejects anonymous pricing requests with 401.
	RequirePricingAuth bool
	Limiter            ratelimit.Limiter
	RateWindow         time.Duration
	RateMax            int
	Health             health.Handler

	HTTPMetrics    *obs.HTTPMetrics
	MetricsHandler http.Handler
	Tracing        bool
	// Pprof is mounted under /debug.
	Pprof http.Handler

	AllowedOrigins []string
	BodyLimit      int64
	RequestTimeout time.Duration
}

// Handler builds the chi router.
func (rt Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if rt.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.RequestLogger{Logger: rt.Logger}.Middleware)
	if rt.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: rt.HTTPMetrics}.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{NoStore: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(rt.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: len(rt.AllowedOrigins) > 0,
		MaxAge:           300,
	}))
	r.Use(security.BodyLimit{Max: rt.BodyLimit}.Middleware)
	if rt.RequestTimeout > 0 {
		r.Use(middleware.Timeout(rt.RequestTimeout))
	}

	if rt.MetricsHandler != nil {
		r.Handle("/metrics", rt.MetricsHandler)
	}
	if rt.Pprof != nil {
		r.Mount("/debug", rt.Pprof)
	}
	r.Get("/health/live", rt.Health.Live)
	r.Get("/health/ready", rt.Health.Ready)

	pricingRoutes := func(p chi.Router) {
		p.Use(rt.pricingMiddleware()...)
		p.Post("/calculate-price", rt.Cart.CalculatePrice)
		p.Post("/verify-quote", rt.Cart.VerifyQuote)
	}
	r.Route("/cart", pricingRoutes)
	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/cart", pricingRoutes)
		v.Group(func(inv chi.Router) {
			inv.Use(rt.rateLimit("lots:")...)
			inv.Use(rt.Auth.RequireAuth)
			inv.Get("/inventory/products/{productId}/lots", rt.Cart.ProductLots)
		})
	})
	return r
}

func (rt Router) pricingMiddleware() []func(http.Handler) http.Handler {
	chain := rt.rateLimit("pricing:")
	if rt.RequirePricingAuth {
		return append(chain, rt.Auth.RequireAuth)
	}
	return append(chain, rt.Auth.Authenticate)
}

func (rt Router) rateLimit(scope string) []func(http.Handler) http.Handler {
	if rt.Limiter == nil || rt.RateMax <= 0 {
		return nil
	}
	h := ratelimit.Handler{
		Limiter: rt.Limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("rl:" + scope),
			Window: rt.RateWindow,
			Max:    rt.RateMax,
		},
		OnError: func(r *http.Request, err error) {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rate_limiter_unavailable")
		},
	}
	return []func(http.Handler) http.Handler{h.Middleware}
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
