package cmd

import (
	"errors"
	"net/http"

	"siteguard/features/gateway"
	"siteguard/features/web"
	"siteguard/internal/telemetry"
	"siteguard/internal/tracing"

	"github.com/google/uuid"
	"github.com/ory/graceful"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// WebServer is the CLI command that starts the background core, the control
// API and, when enabled, the filtering gateway.
var WebServer = &cli.Command{
	Name:    "serve",
	Aliases: []string{"s"},
	Usage:   "Start the background core and the control API",
	Action:  serve,
}

func serve(c *cli.Context) error {
	stop := tracing.StartExecTrace("serve", uuid.NewString())
	defer stop()

	return withCore(c.Context, func(core *core) error {
		shutdownTelemetry, err := telemetry.InitTelemetry(c.Context, core.cfg.Telemetry)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize telemetry")
			return err
		}
		defer func() {
			if err := shutdownTelemetry(c.Context); err != nil {
				log.Error().Err(err).Msg("Failed to shut down telemetry")
			}
		}()

		app, err := web.NewApplication(&core.cfg.Server, core.engine)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create web application")
			return err
		}
		core.hub.SetHandler(core.engine)

		if err := core.engine.Start(c.Context); err != nil {
			log.Error().Err(err).Msg("Failed to start engine")
			return err
		}

		if core.cfg.Gateway.Enabled {
			gw := gateway.New(core.cfg.Gateway, core.table, core.store, core.engine.Hider()).Server()
			log.Info().Str("address", gw.Addr).Msg("Starting gateway")
			go func() {
				if err := graceful.Graceful(gw.ListenAndServe, gw.Shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("Gateway stopped with error")
				}
			}()
		}

		server := graceful.WithDefaults(app.Echo.Server)
		log.Info().Msgf("Starting server on %s", server.Addr)

		if err := graceful.Graceful(server.ListenAndServe, server.Shutdown); err != nil {
			log.Error().Err(err).Msg("Failed to start server")
			return err
		}

		log.Info().Msg("Server stopped gracefully.")
		return nil
	})
}
