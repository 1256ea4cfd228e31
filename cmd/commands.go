package cmd

import (
	"github.com/urfave/cli/v2"
)

var Commands = []*cli.Command{
	WebServer,
	SitesCommand,
	ElementsCommand,
	RulesCommand,
	SnoozeCommand,
	PreviewCommand,
}

var jsonFlag = &cli.BoolFlag{
	Name:    "json",
	Aliases: []string{"j"},
	Usage:   "Output results in JSON format.",
	Value:   false,
}
