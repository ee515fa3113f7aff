package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
)

// Logging writes a start and a finish line per request and feeds the HTTP
// metrics. Paths in quiet (health checks, scrapes) bypass both.
func Logging(logg *logger.Logger, m *metrics.HTTPMetrics, quiet ...string) func(http.Handler) http.Handler {
	skip := map[string]bool{}
	for _, p := range quiet {
		skip[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] || logg == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := logg.WithFields(r.Context(), map[string]any{"method": r.Method, "path": r.URL.Path})
			logg.Info(ctx, "request.start")

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))
			took := time.Since(started)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			m.Observe(r.Method, route, status, took)

			ctx = logg.WithFields(ctx, map[string]any{
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": took.Milliseconds(),
				"route":       route,
			})
			if status >= http.StatusInternalServerError {
				logg.Warn(ctx, "request.failed")
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}

// routePattern is read after the handler ran, once chi has matched.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
