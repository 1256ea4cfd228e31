package cmd

import (
	"fmt"

	"siteguard/features/rules"
	"siteguard/internal/tracing"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// RulesCommand inspects and applies the compiled rule set.
var RulesCommand = &cli.Command{
	Name:  "rules",
	Usage: "Inspect and apply blocking rules",
	Subcommands: []*cli.Command{
		{
			Name:   "show",
			Usage:  "Show the rules installed in the rule table",
			Action: showRules,
		},
		{
			Name:   "compiled",
			Usage:  "Show the rules the current settings compile to",
			Action: compiledRules,
		},
		{
			Name:   "apply",
			Usage:  "Replace the installed rules with the compiled set",
			Action: applyRules,
		},
	},
}

func showRules(c *cli.Context) error {
	return withCore(c.Context, func(core *core) error {
		rs, err := core.table.GetDynamicRules(c.Context)
		if err != nil {
			return err
		}
		return printJSON(rs)
	})
}

func compiledRules(c *cli.Context) error {
	return withCore(c.Context, func(core *core) error {
		s, err := core.store.View(c.Context)
		if err != nil {
			return err
		}
		return printJSON(rules.CompileSettings(s, rules.WithPriority(core.cfg.Rules.Priority)))
	})
}

func applyRules(c *cli.Context) error {
	stop := tracing.StartExecTrace("rules.apply", uuid.NewString())
	defer stop()

	return withCore(c.Context, func(core *core) error {
		res, err := core.engine.Applier().Apply(c.Context)
		if err != nil {
			return fmt.Errorf("apply rules: %w", err)
		}
		return printJSON(res)
	})
}
