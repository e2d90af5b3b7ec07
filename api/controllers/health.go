package controllers

import (
	"context"
	"net/http"

	"github.com/tijarahq/tijara-backend/api/responses"
	"github.com/tijarahq/tijara-backend/pkg/config"
	"github.com/tijarahq/tijara-backend/pkg/db"
	pkgerrors "github.com/tijarahq/tijara-backend/pkg/errors"
	"github.com/tijarahq/tijara-backend/pkg/logger"
	"github.com/tijarahq/tijara-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tijara-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness after pinging the data stores.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tijara-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		checks["database"] = pingStatus(r.Context(), func(ctx context.Context) error {
			if dbP == nil {
				return nil
			}
			return dbP.Ping(ctx)
		}, &healthy)
		checks["redis"] = pingStatus(r.Context(), func(ctx context.Context) error {
			if redisP == nil {
				return nil
			}
			return redisP.Ping(ctx)
		}, &healthy)

		if !healthy {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

func pingStatus(ctx context.Context, ping func(context.Context) error, healthy *bool) string {
	if err := ping(ctx); err != nil {
		*healthy = false
		return "down"
	}
	return "up"
}
