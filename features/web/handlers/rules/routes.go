package rules

import (
	"siteguard/features/engine"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

func MapRuleRoutes(e *echo.Echo, eng *engine.Engine) error {
	handler := NewRuleHandler(eng)

	g := e.Group("/rules")
	g.GET("", handler.Installed)
	g.GET("/compiled", handler.Compiled)
	g.GET("/match", handler.Match)
	g.POST("/apply", handler.Apply)

	log.Info().Msg("Rule routes mapped successfully. at /rules")

	return nil
}
