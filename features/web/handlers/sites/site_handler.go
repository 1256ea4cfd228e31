package sites

import (
	"net/http"
	"net/url"

	"siteguard/features/control"
	"siteguard/features/snooze"
	"siteguard/features/web/handlers/response"

	"github.com/labstack/echo/v4"
)

var siteErrors = map[error]int{
	control.ErrEmptySite:        http.StatusBadRequest,
	control.ErrInvalidSite:      http.StatusBadRequest,
	control.ErrInvalidSnoozeLen: http.StatusBadRequest,
	snooze.ErrEmptySite:         http.StatusBadRequest,
	control.ErrSiteExists:       http.StatusConflict,
	control.ErrSiteNotFound:     http.StatusNotFound,
}

type SiteHandler struct {
	Service *control.Service
}

func NewSiteHandler(service *control.Service) *SiteHandler {
	return &SiteHandler{Service: service}
}

// List returns the full control-surface snapshot.
func (h *SiteHandler) List(c echo.Context) error {
	snap, err := h.Service.Snapshot(c.Request().Context())
	if err != nil {
		return response.FromError(c, err, siteErrors)
	}
	return response.Success(c, snap)
}

func (h *SiteHandler) Add(c echo.Context) error {
	req := &AddSiteInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	site, err := h.Service.AddSite(c.Request().Context(), req.Site)
	if err != nil {
		return response.FromError(c, err, siteErrors)
	}
	return response.SuccessWithStatus(c, http.StatusCreated, map[string]string{"site": site})
}

func (h *SiteHandler) Delete(c echo.Context) error {
	site, err := url.PathUnescape(c.Param("site"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := h.Service.DeleteSite(c.Request().Context(), site); err != nil {
		return response.FromError(c, err, siteErrors)
	}
	return response.Success(c, map[string]string{"site": site})
}

// SetState toggles one site. Disabling starts a snooze.
func (h *SiteHandler) SetState(c echo.Context) error {
	site, err := url.PathUnescape(c.Param("site"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}
	req := &StateInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.Service.SetSiteEnabled(c.Request().Context(), site, *req.Enabled); err != nil {
		return response.FromError(c, err, siteErrors)
	}
	return h.List(c)
}

func (h *SiteHandler) SetBlocking(c echo.Context) error {
	req := &StateInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.Service.SetBlockingEnabled(c.Request().Context(), *req.Enabled); err != nil {
		return response.FromError(c, err, siteErrors)
	}
	return response.Success(c, map[string]bool{"blockingEnabled": *req.Enabled})
}

func (h *SiteHandler) SetSnoozeDuration(c echo.Context) error {
	req := &SnoozeDurationInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.Service.SetAutoToggleTime(c.Request().Context(), req.Minutes); err != nil {
		return response.FromError(c, err, siteErrors)
	}
	return response.Success(c, map[string]int{"autoToggleTime": req.Minutes})
}
