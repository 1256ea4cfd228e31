package messages

import (
	"errors"

	"siteguard/features/engine"
	"siteguard/features/messaging"
	"siteguard/features/snooze"
	"siteguard/features/web/handlers/response"

	"github.com/labstack/echo/v4"
)

type MessageInput struct {
	Action  messaging.Action `json:"action" validate:"required"`
	Minutes int              `json:"minutes" validate:"min=0"`
}

type MessageHandler struct {
	Engine *engine.Engine
}

func NewMessageHandler(eng *engine.Engine) *MessageHandler {
	return &MessageHandler{Engine: eng}
}

// Send delivers one control message to the core, the same way a popup does
// over the socket.
func (h *MessageHandler) Send(c echo.Context) error {
	req := &MessageInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	reply, err := h.Engine.Handle(c.Request().Context(), messaging.Message{
		Action:  req.Action,
		Minutes: req.Minutes,
	})
	if errors.Is(err, engine.ErrUnknownAction) || errors.Is(err, snooze.ErrNegativeShift) {
		return response.BadRequest(c, err.Error())
	}
	if err != nil {
		return response.FromError(c, err, nil)
	}
	return response.Success(c, reply)
}
