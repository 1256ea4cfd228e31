package web

import (
	"siteguard/features/web/handlers/elements"
	"siteguard/features/web/handlers/health"
	"siteguard/features/web/handlers/messages"
	"siteguard/features/web/handlers/problem"
	"siteguard/features/web/handlers/rules"
	"siteguard/features/web/handlers/sites"

	"github.com/labstack/echo/v4"
)

func (app *Application) ConfigureRoutes() error {
	e := app.Echo

	app.MapHome()

	if err := sites.MapSiteRoutes(e, app.control); err != nil {
		return err
	}
	if err := elements.MapElementRoutes(e, app.control, app.engine.Store(), app.engine.Hider()); err != nil {
		return err
	}
	if err := rules.MapRuleRoutes(e, app.engine); err != nil {
		return err
	}
	if err := messages.MapMessageRoutes(e, app.engine); err != nil {
		return err
	}

	problem.MapRoutes(e)
	health.MapHealth(e, *app.config, app.engine.Applier())

	return nil
}

func (app *Application) MapHome() {
	e := app.Echo

	e.GET("/", func(c echo.Context) error {
		return c.String(200, "siteguard control surface")
	})
}
