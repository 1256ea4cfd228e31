package rules

import (
	"errors"
	"net/http"

	"siteguard/features/applier"
	"siteguard/features/engine"
	ruleset "siteguard/features/rules"
	"siteguard/features/web/handlers/response"

	"github.com/labstack/echo/v4"
)

type MatchInput struct {
	URL string `query:"url" validate:"required"`
}

type MatchPayload struct {
	URL     string        `json:"url"`
	Blocked bool          `json:"blocked"`
	Rule    *ruleset.Rule `json:"rule,omitempty"`
}

type RuleHandler struct {
	Engine *engine.Engine
}

func NewRuleHandler(eng *engine.Engine) *RuleHandler {
	return &RuleHandler{Engine: eng}
}

// Installed lists the rules currently in the host table.
func (h *RuleHandler) Installed(c echo.Context) error {
	rs, err := h.Engine.Table().GetDynamicRules(c.Request().Context())
	if err != nil {
		return response.FromError(c, err, nil)
	}
	return response.Success(c, rs)
}

// Compiled shows the rules the current settings would install.
func (h *RuleHandler) Compiled(c echo.Context) error {
	s, err := h.Engine.Store().View(c.Request().Context())
	if err != nil {
		return response.FromError(c, err, nil)
	}
	priority := ruleset.WithPriority(h.Engine.Config().Rules.Priority)
	return response.Success(c, ruleset.CompileSettings(s, priority))
}

func (h *RuleHandler) Match(c echo.Context) error {
	req := &MatchInput{}
	if err := c.Bind(req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	payload := MatchPayload{URL: req.URL}
	if rule, ok := h.Engine.Table().Match(req.URL); ok {
		payload.Blocked = true
		payload.Rule = &rule
	}
	return response.Success(c, payload)
}

// Apply runs a rule pass synchronously. It answers 409 while another pass
// is running; use POST /messages with updateRules to queue one instead.
func (h *RuleHandler) Apply(c echo.Context) error {
	res, err := h.Engine.Applier().Apply(c.Request().Context())
	if errors.Is(err, applier.ErrPassInProgress) {
		return response.Error(c, http.StatusConflict, err.Error())
	}
	if err != nil {
		return response.ErrorWithDetails(c, http.StatusBadGateway, "rule pass failed", err.Error())
	}
	return response.Success(c, res)
}
