package cmd

import (
	"bytes"
	"fmt"
	"os"

	"siteguard/features/hider"
	"siteguard/internal/colly"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// PreviewCommand fetches a page and shows what the element hider would do to it.
var PreviewCommand = &cli.Command{
	Name:  "preview",
	Usage: "Fetch a page and apply the element hider to it",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "url",
			Aliases:  []string{"u"},
			Usage:    "Page to fetch.",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Write the rewritten HTML to this file.",
		},
		jsonFlag,
	},
	Action: preview,
}

func preview(c *cli.Context) error {
	return withCore(c.Context, func(core *core) error {
		page, err := colly.FetchPage(c.Context, core.cfg.Colly, c.String("url"))
		if err != nil {
			return err
		}

		doc, err := hider.NewHTMLDocument(bytes.NewReader(page.Body), page.URL)
		if err != nil {
			return err
		}

		// Replay the page lifecycle: a settle run and a late run.
		session := core.engine.Hider().NewSession(doc, core.store, core.cfg.Hider)
		defer session.Close()
		if err := session.Loaded(c.Context); err != nil {
			return err
		}
		session.Wait()
		runs, report := session.Runs()
		log.Debug().Int("runs", runs).Msg("Element hider finished")

		if out := c.String("out"); out != "" {
			html, err := doc.HTML()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, []byte(html), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			log.Info().Str("file", out).Msg("Rewritten page saved")
		}

		if c.Bool("json") {
			return printJSON(report)
		}

		fmt.Printf("%s: %d element(s) hidden\n", report.Hostname, report.Total())
		for selector, n := range report.Hidden {
			fmt.Printf("  %-40s %d\n", selector, n)
		}
		for _, e := range report.Errors {
			fmt.Printf("  skipped %s\n", e.Error())
		}
		return nil
	})
}
