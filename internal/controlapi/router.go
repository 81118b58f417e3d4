// Package controlapi is the admin HTTP surface for an assembled store:
// health/readiness probes, aggregate stats, a Prometheus metrics
// endpoint, and bearer-token-protected flush/survey operations.
package controlapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/s3block/internal/controlapi/auth"
	"github.com/marmos91/s3block/internal/logger"
	"github.com/marmos91/s3block/pkg/metrics"
	s3store "github.com/marmos91/s3block/store"
)

// NewRouter builds the admin HTTP handler for store, with geo describing
// its block geometry and jwtService minting/validating operator tokens.
//
// Routes:
//   - GET  /health         - liveness probe
//   - GET  /health/ready    - readiness probe (exercises the store)
//   - GET  /stats           - aggregate block occupancy counts
//   - GET  /metrics         - Prometheus exposition (only if metrics are enabled)
//   - POST /admin/login     - mint a bearer token for the bootstrap operator
//   - POST /admin/flush     - flush outstanding writes (authenticated)
//   - GET  /admin/survey    - list non-zero block indices (authenticated)
func NewRouter(store s3store.Store, geo s3store.Config, jwtService *auth.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{store: store, geo: geo, jwt: jwtService, startedAt: time.Now()}

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.Liveness)
		r.Get("/ready", h.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	r.Get("/stats", h.Stats)

	if metrics.IsEnabled() {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth(jwtService))
			r.Post("/flush", h.Flush)
			r.Get("/survey", h.Survey)
		})
	})

	return r
}

// requestLogger logs every request through the ambient stack's logger,
// matching the dual debug-start/info-complete shape used elsewhere.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("admin API request started",
			"request_id", requestID, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("admin API request completed",
			"request_id", requestID, "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "bytes", ww.BytesWritten(), "duration", time.Since(start).String())
	})
}
