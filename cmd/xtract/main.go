// Command xtract manages documents and their extracted pages from a local
// store.
package main

import (
	"fmt"
	"os"

	"github.com/Lllllllleong/xtractme/internal/config"
	"github.com/Lllllllleong/xtractme/internal/logging"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "xtract",
		Usage: "extract text from PDFs and images with pluggable OCR engines",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"XTRACT_CONFIG"}, Usage: "path to a YAML config file"},
			&cli.StringFlag{Name: "log-level", Usage: "override the configured log level"},
			&cli.StringSliceFlag{Name: "disable", Usage: "treat the named engines as unavailable"},
		},
		Before: loadConfig,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "add a document and run its first extraction",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "engine", Usage: "OCR engine, defaults to pipeline.default_engine"},
				},
				Action: AddAction,
			},
			{
				Name:      "process",
				Usage:     "reprocess documents, replacing their pages",
				ArgsUsage: "[ids...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "process every document"},
					&cli.BoolFlag{Name: "changed", Usage: "only process documents whose engine changed or that have no pages"},
				},
				Action: ProcessAction,
			},
			{
				Name:      "set-engine",
				Usage:     "change a document's OCR engine and reprocess it",
				ArgsUsage: "<id> <engine>",
				Action:    SetEngineAction,
			},
			{
				Name:      "update",
				Usage:     "change a document's title or description",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "description"},
				},
				Action: UpdateAction,
			},
			{
				Name:   "list",
				Usage:  "list documents",
				Action: ListAction,
			},
			{
				Name:      "pages",
				Usage:     "show the extracted pages of a document",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "include the structured page payload"},
				},
				Action: PagesAction,
			},
			{
				Name:   "engines",
				Usage:  "show engine availability",
				Action: EnginesAction,
			},
		},
	}
}

func loadConfig(c *cli.Context) error {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format, c.App.ErrWriter)
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata["config"] = cfg
	return nil
}
