package messages

import (
	"net/http"

	"siteguard/features/engine"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

func MapMessageRoutes(e *echo.Echo, eng *engine.Engine) error {
	handler := NewMessageHandler(eng)

	e.POST("/messages", handler.Send)
	e.GET("/ws", echo.WrapHandler(http.HandlerFunc(eng.Hub().ServeWS)))

	log.Info().Msg("Message routes mapped successfully. at /messages, /ws")

	return nil
}
