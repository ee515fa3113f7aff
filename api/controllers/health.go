package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/freightmarket-backend/api/responses"
	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency that readiness checks reach.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Freight-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// HealthReady pings every dependency and reports the first that fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Freight-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "unavailable"
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" not ready").WithDetails(checks))
				return
			}
			checks[name] = "ok"
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
