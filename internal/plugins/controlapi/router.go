package controlapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/botmesh/botmesh/pkg/metrics"
)

// router builds the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging through the plugin's scoped logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /metrics - Prometheus scrape endpoint (when metrics are enabled)
//   - POST /v1/tokens - Exchange a static operator token for a session token
//   - GET /v1/status - Runtime state, uptime and counts
//   - GET /v1/plugins - Discovered plugin descriptors (?kind= filters)
//   - GET /v1/plugins/{name} - One descriptor
//   - GET /v1/plan - The current startup plan
//   - POST /v1/plan/invalidate - Discard the memoized plan (admin)
//   - POST /v1/plugins/reload - Rescan the plugin tree (admin)
//
// Read routes are open; mutating routes require an admin bearer token
// unless authentication is disabled.
func (s *Service) router() http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health route - unauthenticated
	r.Get("/health", s.handleHealth)

	// Prometheus scrape endpoint - unauthenticated, only mounted when the
	// process registry exists
	if s.config.Metrics {
		if reg := metrics.GetRegistry(); reg != nil {
			r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		}
	}

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	r.Route("/v1", func(r chi.Router) {
		// Session tokens are issued against a static operator token, so
		// the route only exists when a verifier is wired in.
		if s.verifier != nil {
			r.Post("/tokens", s.handleIssueToken)
		}

		// Read routes
		r.Get("/status", s.handleStatus)
		r.Get("/plugins", s.handleListPlugins)
		r.Get("/plugins/{name}", s.handleGetPlugin)
		r.Get("/plan", s.handleGetPlan)

		// Mutating routes - admin bearer token required
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.requireAdmin)

			r.Post("/plan/invalidate", s.handleInvalidatePlan)
			r.Post("/plugins/reload", s.handleReload)
		})
	})

	return r
}
