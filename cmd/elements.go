package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var elementFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "domain",
		Aliases:  []string{"d"},
		Usage:    "Domain fragment the element applies to, e.g. youtube.com",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "selector",
		Aliases:  []string{"s"},
		Usage:    "CSS selector or a document.querySelector(...) style expression",
		Required: true,
	},
}

// ElementsCommand manages page elements hidden by the element hider.
var ElementsCommand = &cli.Command{
	Name:  "elements",
	Usage: "Manage hidden page elements",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "List blocked elements",
			Flags:  []cli.Flag{jsonFlag},
			Action: listElements,
		},
		{
			Name:   "add",
			Usage:  "Add a blocked element",
			Flags:  elementFlags,
			Action: addElement,
		},
		{
			Name:    "delete",
			Aliases: []string{"rm"},
			Usage:   "Remove a blocked element",
			Flags:   elementFlags,
			Action:  deleteElement,
		},
		{
			Name:   "enable",
			Usage:  "Hide an element again",
			Flags:  elementFlags,
			Action: setElement(true),
		},
		{
			Name:   "disable",
			Usage:  "Stop hiding an element without removing it",
			Flags:  elementFlags,
			Action: setElement(false),
		},
	},
}

func listElements(c *cli.Context) error {
	return withCore(c.Context, func(core *core) error {
		snap, err := core.control.Snapshot(c.Context)
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return printJSON(snap.Elements)
		}
		for _, e := range snap.Elements {
			state := color.GreenString("hidden")
			if !e.Enabled {
				state = color.YellowString("shown")
			}
			fmt.Printf("  %-24s %-40s %s\n", e.Domain, e.Selector, state)
		}
		return nil
	})
}

func addElement(c *cli.Context) error {
	return withCore(c.Context, func(core *core) error {
		el, err := core.control.AddElement(c.Context, c.String("domain"), c.String("selector"))
		if err != nil {
			return err
		}
		fmt.Println("added", el.Key())
		return nil
	})
}

func deleteElement(c *cli.Context) error {
	return withCore(c.Context, func(core *core) error {
		return core.control.DeleteElement(c.Context, c.String("domain"), c.String("selector"))
	})
}

func setElement(enabled bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		return withCore(c.Context, func(core *core) error {
			return core.control.SetElementEnabled(c.Context, c.String("domain"), c.String("selector"), enabled)
		})
	}
}
