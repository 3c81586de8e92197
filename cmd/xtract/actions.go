package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Lllllllleong/xtractme/internal/config"
	"github.com/Lllllllleong/xtractme/internal/engines"
	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pipeline"
	"github.com/Lllllllleong/xtractme/internal/store"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

type env struct {
	cfg      *config.Config
	store    store.Store
	registry *extraction.Registry
	svc      *pipeline.Service

	closeEngines func() error
}

func openEnv(c *cli.Context) (*env, error) {
	cfg, ok := c.App.Metadata["config"].(*config.Config)
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	st, err := store.Open(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	registry, closeEngines := engines.Build(cfg, engines.Options{})
	for _, name := range c.StringSlice("disable") {
		engine, ok := models.ParseEngine(name)
		if !ok {
			st.Close()
			closeEngines()
			return nil, fmt.Errorf("%w %q", pipeline.ErrUnknownEngine, name)
		}
		registry.Force(engine, extraction.Capability{Reason: "disabled on the command line"})
	}

	var sink pipeline.ImageSink
	if cfg.Pipeline.StorePageImages {
		sink = pipeline.DirSink{Dir: cfg.Pipeline.ImageDir}
	}
	orch := pipeline.New(registry, st, st, pipeline.OptionsFromConfig(cfg, sink))
	return &env{
		cfg:          cfg,
		store:        st,
		registry:     registry,
		svc:          pipeline.NewService(orch, st, st),
		closeEngines: closeEngines,
	}, nil
}

func (e *env) Close() error {
	return errors.Join(e.closeEngines(), e.store.Close())
}

func AddAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: xtract add <file>", 2)
	}
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	path, err := filepath.Abs(c.Args().First())
	if err != nil {
		return err
	}
	engine := e.cfg.Pipeline.DefaultEngine
	if name := c.String("engine"); name != "" {
		parsed, ok := models.ParseEngine(name)
		if !ok {
			return fmt.Errorf("%w %q", pipeline.ErrUnknownEngine, name)
		}
		engine = parsed
	}
	title := c.String("title")
	if title == "" {
		title = filepath.Base(path)
	}

	doc := &models.Document{
		Title:       title,
		Description: c.String("description"),
		FilePath:    path,
		OCREngine:   engine,
	}
	out, err := e.svc.Add(c.Context, doc)
	if out != nil && out.Document != nil {
		printOutcome(c, out)
	}
	return err
}

func ProcessAction(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	args := c.Args().Slice()
	if c.Bool("all") {
		docs, err := e.store.ListDocuments(c.Context)
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
		args = nil
		for _, d := range docs {
			args = append(args, d.ID)
		}
	}
	// Repeated ids would sync the same document concurrently.
	ids := make([]string, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, id := range args {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return cli.Exit("usage: xtract process [--all | ids...]", 2)
	}

	var (
		mu                         sync.Mutex
		processed, skipped, failed int
	)
	force := !c.Bool("changed")
	g := new(errgroup.Group)
	g.SetLimit(max(1, e.cfg.Pipeline.Concurrency))
	for _, id := range ids {
		g.Go(func() error {
			out, err := e.svc.Sync(c.Context, id, force)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, pipeline.ErrNoFile):
				skipped++
				fmt.Fprintf(c.App.Writer, "%s: skipped, no file\n", id)
			case err != nil:
				failed++
				fmt.Fprintf(c.App.Writer, "%s: failed: %v\n", id, err)
			case !out.Processed:
				skipped++
				fmt.Fprintf(c.App.Writer, "%s: up to date\n", id)
			default:
				processed++
				printOutcome(c, out)
			}
			// Failures are counted, not propagated, so one bad document
			// does not cancel the rest.
			return nil
		})
	}
	_ = g.Wait()

	fmt.Fprintf(c.App.Writer, "\nProcessed: %d  Skipped: %d  Failed: %d\n", processed, skipped, failed)
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d documents failed", failed), 1)
	}
	return nil
}

func SetEngineAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: xtract set-engine <id> <engine>", 2)
	}
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	out, err := e.svc.SetEngine(c.Context, c.Args().Get(0), models.EngineName(c.Args().Get(1)))
	if err != nil {
		return err
	}
	if !out.Processed {
		fmt.Fprintf(c.App.Writer, "%s: engine unchanged, nothing to do\n", out.Document.ID)
		return nil
	}
	printOutcome(c, out)
	return nil
}

func UpdateAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: xtract update <id> [--title] [--description]", 2)
	}
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	doc, err := e.svc.Update(c.Context, c.Args().First(), c.String("title"), c.String("description"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s: updated %q\n", doc.ID, doc.String())
	return nil
}

func ListAction(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	docs, err := e.store.ListDocuments(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Fprintln(c.App.Writer, "No documents found")
		return nil
	}

	w := c.App.Writer
	fmt.Fprintf(w, "%-36s %-10s %-12s %-6s %-20s %s\n", "ID", "Status", "Engine", "Pages", "Created", "Title")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, d := range docs {
		fmt.Fprintf(w, "%-36s %-10s %-12s %-6d %-20s %s\n",
			d.ID, d.Status, d.OCREngine, d.PageCount, d.CreatedAt.Format("2006-01-02 15:04:05"), d.String())
	}
	fmt.Fprintf(w, "\nTotal: %d documents\n", len(docs))
	return nil
}

func PagesAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: xtract pages <id> [--json]", 2)
	}
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	id := c.Args().First()
	doc, err := e.store.GetDocument(c.Context, id)
	if err != nil {
		return err
	}
	pages, err := e.store.ListPages(c.Context, id)
	if err != nil {
		return fmt.Errorf("failed to list pages: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "%s (%s, engine %s)\n", doc.String(), doc.Status, doc.ProcessedEngine)
	fmt.Fprintf(w, "%d pages, %d characters\n", models.TotalPages(pages), models.TotalTextLength(pages))
	for _, p := range pages {
		fmt.Fprintf(w, "\n--- Page %d [%v/%v] ---\n", p.PageNumber, p.JSONData["ocr_engine"], p.JSONData["extraction_method"])
		fmt.Fprintln(w, p.Text)
		if c.Bool("json") {
			fmt.Fprintln(w, p.JSONPreview())
		}
	}
	return nil
}

func EnginesAction(c *cli.Context) error {
	e, err := openEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	snap := e.registry.Snapshot(c.Context, models.Engines...)

	w := c.App.Writer
	fmt.Fprintf(w, "%-12s %-10s %-6s %s\n", "Engine", "Available", "Mode", "Detail")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, name := range models.Engines {
		capability := snap.Capability(name)
		detail := capability.Endpoint
		if !capability.Available {
			detail = capability.Reason
		}
		fmt.Fprintf(w, "%-12s %-10t %-6s %s\n", name, capability.Available, capability.Mode, detail)
	}
	return nil
}

func printOutcome(c *cli.Context, out *pipeline.Outcome) {
	doc := out.Document
	line := fmt.Sprintf("%s: %s, engine %s, %d pages", doc.ID, doc.Status, doc.OCREngine, doc.PageCount)
	if out.Result != nil {
		line += fmt.Sprintf(" via %s (%s)", out.Result.Engine, out.Result.Path)
	}
	fmt.Fprintln(c.App.Writer, line)
	slog.Debug("Document synced.", "documentId", doc.ID, "processed", out.Processed)
}
