package sites

import (
	"siteguard/features/control"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

func MapSiteRoutes(e *echo.Echo, svc *control.Service) error {
	handler := NewSiteHandler(svc)

	g := e.Group("/sites")
	g.GET("", handler.List)
	g.POST("", handler.Add)
	g.DELETE("/:site", handler.Delete)
	g.PUT("/:site/state", handler.SetState)

	e.PUT("/blocking", handler.SetBlocking)
	e.PUT("/snooze/duration", handler.SetSnoozeDuration)

	log.Info().Msg("Site routes mapped successfully. at /sites, /blocking, /snooze/duration")

	return nil
}
