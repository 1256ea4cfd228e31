package web

import (
	"errors"
	"net/http"
	"net/http/pprof"
	rpprof "runtime/pprof"
	"strconv"
	"sync"

	"siteguard/features/control"
	"siteguard/features/engine"
	"siteguard/features/web/middlewares"
	"siteguard/internal/collector"
	"siteguard/internal/config"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"github.com/unrolled/secure"
	"github.com/ziflex/lecho/v3"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

var (
	ErrMissingEngine   = errors.New("engine is required")
	ErrRoutesMapFailed = errors.New("routes configuration failed")
)

// The echo series are registered on the default registry once per process.
var httpMetrics = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("echo")
})

// Application holds the Echo instance and the services its handlers call.
type Application struct {
	Echo    *echo.Echo
	config  *config.ServerConfig
	logger  *lecho.Logger
	engine  *engine.Engine
	control *control.Service
}

// NewApplication builds the control-surface API around eng.
func NewApplication(cfg *config.ServerConfig, eng *engine.Engine) (*Application, error) {
	if eng == nil {
		return nil, ErrMissingEngine
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.Addr = ":" + strconv.Itoa(cfg.Port)
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	app := &Application{
		Echo:    e,
		config:  cfg,
		engine:  eng,
		control: control.NewService(eng.Store(), eng.Snooze()),
	}

	app.configureLogger()
	app.configureMiddleware()

	if err := app.ConfigureRoutes(); err != nil {
		log.Err(err).Msg("Routes configuration error")
		return nil, ErrRoutesMapFailed
	}

	app.ConfigurePprof()
	collector.Get().ExposeWebMetrics(e)

	log.Info().Str("address", e.Server.Addr).Msg("Server address")
	return app, nil
}

func (app *Application) Control() *control.Service {
	return app.control
}

func (app *Application) configureMiddleware() {
	e := app.Echo

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	e.Use(otelecho.Middleware("siteguard"))
	e.Use(httpMetrics())

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		BrowserXssFilter:   true,
		ContentTypeNosniff: true,
	})
	e.Use(echo.WrapMiddleware(secureMiddleware.Handler))

	e.Use(lecho.Middleware(lecho.Config{Logger: app.logger}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: app.config.AllowOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
		},
	}))

	e.Use(middlewares.RequestLogger())
	e.Pre(middleware.RemoveTrailingSlash())

	middlewares.ConfigureValidator(e)
}

func (app *Application) configureLogger() {
	lechoLogger := lecho.From(log.Logger, lecho.WithTimestamp())
	app.Echo.Logger = lechoLogger
	app.logger = lechoLogger
}

func (app *Application) ConfigurePprof() {
	pprofGroup := app.Echo.Group("/debug/pprof")

	pprofGroup.GET("", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	pprofGroup.GET("/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	pprofGroup.GET("/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	pprofGroup.GET("/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	pprofGroup.GET("/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))

	for _, profile := range rpprof.Profiles() {
		name := profile.Name()
		pprofGroup.GET("/"+name, echo.WrapHandler(pprof.Handler(name)))
	}
}
