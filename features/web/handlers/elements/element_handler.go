package elements

import (
	"net/http"

	"siteguard/features/control"
	"siteguard/features/hider"
	"siteguard/features/web/handlers/response"

	"github.com/labstack/echo/v4"
)

var elementErrors = map[error]int{
	control.ErrInvalidElement:  http.StatusBadRequest,
	control.ErrElementExists:   http.StatusConflict,
	control.ErrElementNotFound: http.StatusNotFound,
}

type ElementHandler struct {
	Service *control.Service
	Source  hider.Source
	Hider   *hider.Hider
}

func NewElementHandler(service *control.Service, source hider.Source, h *hider.Hider) *ElementHandler {
	return &ElementHandler{Service: service, Source: source, Hider: h}
}

func (h *ElementHandler) List(c echo.Context) error {
	snap, err := h.Service.Snapshot(c.Request().Context())
	if err != nil {
		return response.FromError(c, err, elementErrors)
	}
	return response.Success(c, snap.Elements)
}

func (h *ElementHandler) Add(c echo.Context) error {
	req := &ElementInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	el, err := h.Service.AddElement(c.Request().Context(), req.Domain, req.Selector)
	if err != nil {
		return response.FromError(c, err, elementErrors)
	}
	return response.SuccessWithStatus(c, http.StatusCreated, el)
}

func (h *ElementHandler) Delete(c echo.Context) error {
	req := &ElementInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.Service.DeleteElement(c.Request().Context(), req.Domain, req.Selector); err != nil {
		return response.FromError(c, err, elementErrors)
	}
	return response.Success(c, req)
}

func (h *ElementHandler) SetState(c echo.Context) error {
	req := &ElementStateInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	err := h.Service.SetElementEnabled(c.Request().Context(), req.Domain, req.Selector, *req.Enabled)
	if err != nil {
		return response.FromError(c, err, elementErrors)
	}
	return response.Success(c, req)
}

// Plan shows which selectors a page on host would hide right now and which
// entries would be skipped as malformed.
func (h *ElementHandler) Plan(c echo.Context) error {
	req := &PlanInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	s, err := h.Source.View(c.Request().Context())
	if err != nil {
		return response.FromError(c, err, elementErrors)
	}
	return response.Success(c, h.Hider.PlanSettings(req.Host, s))
}
