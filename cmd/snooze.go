package cmd

import (
	"github.com/urfave/cli/v2"
)

// SnoozeCommand runs the auto-toggle sweep by hand.
var SnoozeCommand = &cli.Command{
	Name:  "snooze",
	Usage: "Check or fast-forward snoozed sites",
	Subcommands: []*cli.Command{
		{
			Name:   "check",
			Usage:  "Re-enable every site whose snooze has expired",
			Action: checkSnoozes,
		},
		{
			Name:  "simulate",
			Usage: "Pretend time passed, then re-enable expired sites",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "minutes",
					Aliases: []string{"m"},
					Usage:   "Minutes to fast-forward. 0 uses the configured default.",
				},
			},
			Action: simulateSnoozes,
		},
	},
}

func checkSnoozes(c *cli.Context) error {
	return withCore(c.Context, func(core *core) error {
		res, err := core.engine.Snooze().Sweep(c.Context)
		if err != nil {
			return err
		}
		if err := core.awaitRules(); err != nil {
			return err
		}
		return printJSON(res)
	})
}

func simulateSnoozes(c *cli.Context) error {
	return withCore(c.Context, func(core *core) error {
		res, err := core.engine.Snooze().SimulateTimePassing(c.Context, c.Int("minutes"))
		if err != nil {
			return err
		}
		if err := core.awaitRules(); err != nil {
			return err
		}
		return printJSON(res)
	})
}
