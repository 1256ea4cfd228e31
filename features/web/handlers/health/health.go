package health

import (
	"net/http"

	"siteguard/features/applier"
	"siteguard/internal/config"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// StatusSource reports the state of the rule applier.
type StatusSource interface {
	State() applier.State
	Last() applier.Status
}

// MapHealth sets up a simple healthcheck endpoint if enabled in config.
func MapHealth(e *echo.Echo, cfg config.ServerConfig, src StatusSource) {
	if !cfg.HealthCheck {
		log.Info().Msg("Health check disabled")
		return
	}
	g := e.Group("/health")
	g.GET("/status", StatusCheck(src))
	log.Info().Msg("Health check enabled at /health/status")
}

// StatusCheck returns "ok" with the applier state and the outcome of the
// last rule pass. A failed pass does not make the service unhealthy.
func StatusCheck(src StatusSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]any{"status": "ok"}
		if src != nil {
			body["applier"] = src.State().String()
			body["last_pass"] = src.Last()
		}
		return c.JSON(http.StatusOK, body)
	}
}
