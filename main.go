package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	stdlog "log"

	"siteguard/cmd"
	"siteguard/internal/config"
	"siteguard/internal/logger"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		stdlog.Fatalf("error running the app: %v", err)
	}
}

func app() *cli.App {
	helpName := color.YellowString(filepath.Base(os.Args[0]))
	year := strconv.Itoa(time.Now().UTC().Year())

	app := &cli.App{
		Usage:       "Site blocker core",
		HelpName:    helpName,
		Version:     "v0.1.0",
		Compiled:    time.Now().UTC(),
		Copyright:   "© " + year + " siteguard",
		Description: "Blocks distracting sites with snoozable per-site toggles and hides page elements.",
		Commands:    cmd.Commands,
		Before:      before,
	}

	app.Suggest = true
	return app
}

func before(c *cli.Context) error {
	if err := config.InitConfig(); err != nil {
		stdlog.Printf("error loading config: %v", err)
		return err
	}

	logger.InitializeLogger()

	log.Debug().Str("env", config.GetConfig().APP.Environtment).Msg("Configuration loaded")
	return nil
}
