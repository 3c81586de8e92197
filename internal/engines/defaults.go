package engines

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/xtractme/internal/config"
	"github.com/Lllllllleong/xtractme/internal/extraction"
	"github.com/Lllllllleong/xtractme/internal/models"
)

// Options carries collaborators that live outside this package.
type Options struct {
	// Vertex serves engines whose provider is "vertex".
	Vertex Generator
	// Publisher exposes source files to the MinerU task API.
	Publisher SourcePublisher
}

// Build registers every known engine according to cfg. Engines disabled in
// config stay registered but are pinned unavailable. The returned func
// releases native resources.
func Build(cfg *config.Config, opts Options) (*extraction.Registry, func() error) {
	reg := extraction.NewRegistry()

	reg.Register(NewDirect())
	reg.Register(NewLayout())

	tess := NewTesseract(cfg.Engine(models.EngineTesseract).Language)
	reg.Register(tess)

	for _, name := range []models.EngineName{
		models.EngineMinerU,
		models.EngineDeepSeek,
		models.EnginePaddleOCR,
		models.EngineTrOCR,
		models.EngineDonut,
		models.EngineOlmOCR,
		models.EngineLightOnOCR,
	} {
		e, err := buildEngine(name, cfg.Engine(name), opts)
		if err != nil {
			slog.Warn("Engine could not be configured", "engine", name, "error", err)
			reg.Register(&Unconfigured{name: name, reason: err.Error()})
			continue
		}
		reg.Register(e)
	}

	for _, name := range models.Engines {
		if name == models.EngineDirect {
			continue
		}
		if s, ok := cfg.Engines[name]; ok && !s.Enabled {
			reg.Force(name, extraction.Capability{Reason: "disabled in config"})
		}
	}
	return reg, tess.Close
}

func buildEngine(name models.EngineName, s config.EngineSettings, opts Options) (extraction.Engine, error) {
	switch name {
	case models.EngineMinerU:
		if s.Mode == string(extraction.ModeAPI) {
			return NewMinerUAPI(s.APIURL, s.APIKey, opts.Publisher), nil
		}
		return NewMinerULocal(s.Command), nil
	case models.EnginePaddleOCR:
		return NewPaddleOCR(s.APIURL, s.APIKey), nil
	case models.EngineTrOCR:
		return NewTrOCR(s.APIURL, s.APIKey), nil
	case models.EngineDonut:
		return NewDonut(s.APIURL, s.APIKey), nil
	case models.EngineOlmOCR:
		if s.Mode == string(extraction.ModeAPI) {
			gen, err := newGenerator(s, "openai", opts)
			if err != nil {
				return nil, err
			}
			return NewOlmOCRAPI(gen), nil
		}
		return NewOlmOCRLocal(s.Command), nil
	case models.EngineDeepSeek:
		gen, err := newGenerator(s, "ollama", opts)
		if err != nil {
			return nil, err
		}
		return NewVision(name, gen), nil
	case models.EngineLightOnOCR:
		gen, err := newGenerator(s, "openai", opts)
		if err != nil {
			return nil, err
		}
		return NewVision(name, gen), nil
	}
	return nil, fmt.Errorf("no adapter for engine %q", name)
}

func newGenerator(s config.EngineSettings, fallback string, opts Options) (Generator, error) {
	provider := s.Provider
	if provider == "" {
		provider = fallback
	}
	switch provider {
	case "ollama":
		return NewOllamaGenerator(s.APIURL, s.Model)
	case "openai":
		return NewOpenAIGenerator(s.APIURL, s.Model, s.APIKey)
	case "http":
		return NewHTTPOCRGenerator(s.APIURL, s.APIKey), nil
	case "vertex":
		if opts.Vertex == nil {
			return nil, fmt.Errorf("vertex provider selected but no Vertex AI client configured")
		}
		return opts.Vertex, nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

// Unconfigured stands in for an engine whose settings could not be turned
// into an adapter. It always probes unavailable.
type Unconfigured struct {
	name   models.EngineName
	reason string
}

func (u *Unconfigured) Name() models.EngineName { return u.name }

func (u *Unconfigured) Probe(ctx context.Context) extraction.Capability {
	return extraction.Capability{Reason: u.reason}
}

func (u *Unconfigured) ExtractPage(ctx context.Context, img extraction.PageImage) (extraction.PageResult, error) {
	return extraction.PageResult{}, extraction.Unavailable(u.name, u.reason)
}
