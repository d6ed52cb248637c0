package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/betterforces/swr/internal/logger"
	"github.com/betterforces/swr/pkg/api/handlers"
	"github.com/betterforces/swr/pkg/api/middleware"
	"github.com/betterforces/swr/pkg/coordinator"
	"github.com/betterforces/swr/pkg/metrics"
	"github.com/betterforces/swr/pkg/ratelimit"
	"github.com/betterforces/swr/pkg/store"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// The per-client rate limit only guards the data routes; health probes and
// metrics stay unthrottled so orchestrators never get a 429.
//
// Routes:
//   - GET /users/{handle}/submissions - Cached resource lookup
//   - GET /tasks/{taskID} - Refresh task status polling
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /metrics - Prometheus metrics (when enabled)
func NewRouter(coord *coordinator.Coordinator, st *store.Store, limiter *ratelimit.Limiter, cfg APIConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	submissionsHandler := handlers.NewSubmissionsHandler(coord)
	tasksHandler := handlers.NewTasksHandler(coord)
	healthHandler := handlers.NewHealthHandler(st)

	// Data routes - rate limited per client
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter))
		}
		r.Get("/users/{handle}/submissions", submissionsHandler.Get)
		r.Get("/tasks/{taskID}", tasksHandler.Get)
	})

	// Health routes - unauthenticated, unthrottled
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Live)
		r.Get("/ready", healthHandler.Ready)
	})

	if metrics.IsEnabled() {
		r.Handle("/metrics", metrics.Handler())
	}

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyRemoteAddr, r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			logger.KeyDuration, duration.String(),
		)
	})
}
