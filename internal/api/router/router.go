package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpmiddleware "github.com/wolfman30/mealprep-intake/internal/http/middleware"
	"github.com/wolfman30/mealprep-intake/internal/observability/metrics"
	"github.com/wolfman30/mealprep-intake/internal/orders"
	"github.com/wolfman30/mealprep-intake/internal/payments"
	"github.com/wolfman30/mealprep-intake/internal/wizard"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// HealthCheck probes one dependency for /ready.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	Orders        *orders.Handler
	Wizard        *wizard.Handler
	StripeWebhook *payments.StripeWebhookHandler

	AdminAuthSecret    string
	CORSAllowedOrigins []string
	// RateLimiter guards the public intake and wizard APIs when set.
	RateLimiter *httpmiddleware.RateLimiter

	MetricsHandler http.Handler
	HTTPMetrics    *metrics.HTTPMetrics
	HealthChecks   map[string]HealthCheck
	// Tracing wraps the router in otelhttp server spans.
	Tracing bool
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.HTTPMetrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		public.Get("/ready", readinessHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
	})

	// Customer-facing APIs
	r.Group(func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		if cfg.Orders != nil {
			api.Mount("/api", cfg.Orders.Routes())
		}
		if cfg.Wizard != nil {
			api.Mount("/wizard", cfg.Wizard.Routes())
		}
	})

	// Order dashboard (protected by JWT)
	if cfg.AdminAuthSecret != "" && cfg.Orders != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Mount("/", cfg.Orders.AdminRoutes())
		})
	}

	if cfg.Tracing {
		return otelhttp.NewHandler(r, "mealprep-api")
	}
	return r
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func readinessHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp := readinessResponse{Status: "ok", Checks: map[string]string{}}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
