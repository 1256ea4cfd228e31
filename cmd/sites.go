package cmd

import (
	"fmt"
	"time"

	"siteguard/features/control"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

// SitesCommand manages the blocked site list.
var SitesCommand = &cli.Command{
	Name:  "sites",
	Usage: "Manage blocked sites",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "List blocked sites with their state",
			Flags:  []cli.Flag{jsonFlag},
			Action: listSites,
		},
		{
			Name:      "add",
			Usage:     "Add a site (scheme, www. and path are stripped)",
			ArgsUsage: "<site>",
			Action:    addSite,
		},
		{
			Name:      "delete",
			Aliases:   []string{"rm"},
			Usage:     "Remove a site with its state and pending snooze",
			ArgsUsage: "<site>",
			Action:    deleteSite,
		},
		{
			Name:      "enable",
			Usage:     "Block a site again now",
			ArgsUsage: "<site>",
			Action:    setSite(true),
		},
		{
			Name:      "disable",
			Usage:     "Snooze blocking of a site for the configured duration",
			ArgsUsage: "<site>",
			Action:    setSite(false),
		},
	},
}

func siteArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one site, got %d", c.NArg())
	}
	return c.Args().First(), nil
}

func listSites(c *cli.Context) error {
	return withCore(c.Context, func(core *core) error {
		snap, err := core.control.Snapshot(c.Context)
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return printJSON(snap)
		}
		printSites(snap)
		return nil
	})
}

func printSites(snap control.Snapshot) {
	global := color.GreenString("on")
	if !snap.BlockingEnabled {
		global = color.RedString("off")
	}
	fmt.Printf("blocking %s, snooze %d min\n", global, snap.AutoToggleTime)

	for _, s := range snap.Sites {
		state := color.GreenString("blocked")
		if !s.Enabled {
			state = color.YellowString("snoozed")
			if s.WakeAt != nil {
				state += " until " + s.WakeAt.Local().Format(time.Kitchen)
			}
		}
		fmt.Printf("  %-30s %s\n", s.Site, state)
	}
}

func addSite(c *cli.Context) error {
	raw, err := siteArg(c)
	if err != nil {
		return err
	}
	return withCore(c.Context, func(core *core) error {
		site, err := core.control.AddSite(c.Context, raw)
		if err != nil {
			return err
		}
		fmt.Println("added", site)
		return core.sync(c.Context)
	})
}

func deleteSite(c *cli.Context) error {
	site, err := siteArg(c)
	if err != nil {
		return err
	}
	return withCore(c.Context, func(core *core) error {
		if err := core.control.DeleteSite(c.Context, site); err != nil {
			return err
		}
		fmt.Println("deleted", site)
		return core.sync(c.Context)
	})
}

func setSite(enabled bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		site, err := siteArg(c)
		if err != nil {
			return err
		}
		return withCore(c.Context, func(core *core) error {
			if err := core.control.SetSiteEnabled(c.Context, site, enabled); err != nil {
				return err
			}
			return core.sync(c.Context)
		})
	}
}
