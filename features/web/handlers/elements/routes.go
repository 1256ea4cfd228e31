package elements

import (
	"siteguard/features/control"
	"siteguard/features/hider"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

func MapElementRoutes(e *echo.Echo, svc *control.Service, source hider.Source, h *hider.Hider) error {
	handler := NewElementHandler(svc, source, h)

	g := e.Group("/elements")
	g.GET("", handler.List)
	g.POST("", handler.Add)
	g.DELETE("", handler.Delete)
	g.PUT("/state", handler.SetState)
	g.GET("/plan", handler.Plan)

	log.Info().Msg("Element routes mapped successfully. at /elements")

	return nil
}
