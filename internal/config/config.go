// Package config loads xtract settings from a YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/xtractme/internal/models"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline and its entry points.
type Config struct {
	Log      LogConfig                            `yaml:"log"`
	Store    StoreConfig                          `yaml:"store"`
	GCP      GCPConfig                            `yaml:"gcp"`
	Pipeline PipelineConfig                       `yaml:"pipeline"`
	Engines  map[models.EngineName]EngineSettings `yaml:"engines"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// StoreConfig selects where documents and pages live.
type StoreConfig struct {
	Driver              string `yaml:"driver"` // sqlite or firestore
	SQLitePath          string `yaml:"sqlite_path"`
	FirestoreCollection string `yaml:"firestore_collection"`
}

// GCPConfig holds cloud settings shared by the Cloud Functions.
type GCPConfig struct {
	ProjectID        string `yaml:"project_id"`
	VertexRegion     string `yaml:"vertex_region"`
	VertexModel      string `yaml:"vertex_model"`
	PagesBucket      string `yaml:"pages_bucket"`
	SourceBucket     string `yaml:"source_bucket"`
	WorkflowID       string `yaml:"workflow_id"`
	WorkflowLocation string `yaml:"workflow_location"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	DefaultEngine   models.EngineName `yaml:"default_engine"`
	StorePageImages bool              `yaml:"store_page_images"`
	ImageDir        string            `yaml:"image_dir"`
	PageTimeout     time.Duration     `yaml:"page_timeout"`
	DocumentTimeout time.Duration     `yaml:"document_timeout"`
	Concurrency     int               `yaml:"concurrency"`
}

// EngineSettings configure one extraction engine. They are read-only to the
// pipeline.
type EngineSettings struct {
	Enabled  bool          `yaml:"enabled"`
	Mode     string        `yaml:"mode"` // local or api
	APIURL   string        `yaml:"api_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Provider string        `yaml:"provider"` // ollama, openai, vertex or http
	Command  string        `yaml:"command"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// An empty path yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		cfg.mergeEngineDefaults()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration that runs locally with SQLite and
// only the built-in engines reachable.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{
			Driver:              "sqlite",
			SQLitePath:          "xtract.db",
			FirestoreCollection: "documents",
		},
		GCP: GCPConfig{
			VertexRegion:     "us-central1",
			VertexModel:      "gemini-1.5-pro",
			WorkflowLocation: "us-central1",
		},
		Pipeline: PipelineConfig{
			DefaultEngine:   models.DefaultEngine,
			ImageDir:        "page_images",
			PageTimeout:     2 * time.Minute,
			DocumentTimeout: 30 * time.Minute,
			Concurrency:     2,
		},
		Engines: DefaultEngines(),
	}
}

// DefaultEngines returns the per-engine defaults.
func DefaultEngines() map[models.EngineName]EngineSettings {
	return map[models.EngineName]EngineSettings{
		models.EngineDirect:    {Enabled: true, Mode: "local", Timeout: 5 * time.Minute},
		models.EngineLayout:    {Enabled: true, Mode: "local", Timeout: 5 * time.Minute},
		models.EngineTesseract: {Enabled: true, Mode: "local", Language: "eng", Timeout: 2 * time.Minute},
		models.EngineMinerU: {
			Enabled: true, Mode: "local", Command: "mineru",
			APIURL: "https://mineru.net/api/v4", Timeout: 20 * time.Minute,
		},
		models.EngineDeepSeek: {
			Enabled: true, Mode: "local", Provider: "ollama",
			APIURL: "http://localhost:11434", Model: "deepseek-ocr", Timeout: 2 * time.Minute,
		},
		models.EnginePaddleOCR: {Enabled: true, Mode: "api", APIURL: "http://localhost:8080", Timeout: time.Minute},
		models.EngineTrOCR:     {Enabled: true, Mode: "api", APIURL: "http://localhost:8002", Timeout: time.Minute},
		models.EngineDonut:     {Enabled: true, Mode: "api", APIURL: "http://localhost:8003", Timeout: time.Minute},
		models.EngineOlmOCR: {
			Enabled: true, Mode: "local", Command: "python -m olmocr.pipeline {workspace} --markdown --pdfs {input}",
			Provider: "openai", Model: "allenai/olmOCR-7B-0725-FP8", Timeout: 30 * time.Minute,
		},
		models.EngineLightOnOCR: {
			Enabled: true, Mode: "api", Provider: "openai",
			APIURL: "http://localhost:8004/v1", Model: "lightonai/LightOnOCR-1B-1025", Timeout: 2 * time.Minute,
		},
	}
}

// mergeEngineDefaults fills engines missing from a YAML file with defaults.
// Engines present in the file are used as written.
func (c *Config) mergeEngineDefaults() {
	if c.Engines == nil {
		c.Engines = make(map[models.EngineName]EngineSettings)
	}
	for name, def := range DefaultEngines() {
		if _, ok := c.Engines[name]; !ok {
			c.Engines[name] = def
		}
	}
}

// Engine returns the settings for name. Unknown engines are disabled.
func (c *Config) Engine(name models.EngineName) EngineSettings {
	return c.Engines[name]
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Store.Driver != "sqlite" && c.Store.Driver != "firestore" {
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}
	name, ok := models.ParseEngine(string(c.Pipeline.DefaultEngine))
	if !ok {
		return fmt.Errorf("invalid default engine: %q", c.Pipeline.DefaultEngine)
	}
	c.Pipeline.DefaultEngine = name
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline concurrency must be at least 1")
	}
	for n, s := range c.Engines {
		if !n.Valid() {
			return fmt.Errorf("unknown engine in config: %q", n)
		}
		if s.Mode != "" && s.Mode != "local" && s.Mode != "api" {
			return fmt.Errorf("engine %s: invalid mode %q", n, s.Mode)
		}
		switch s.Provider {
		case "", "ollama", "openai", "vertex", "http":
		default:
			return fmt.Errorf("engine %s: invalid provider %q", n, s.Provider)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Per-engine keys take the form XTRACT_<ENGINE>_<FIELD>.
func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("LOG_LEVEL", &cfg.Log.Level)
	setString("LOG_FORMAT", &cfg.Log.Format)
	setString("XTRACT_STORE_DRIVER", &cfg.Store.Driver)
	setString("XTRACT_SQLITE_PATH", &cfg.Store.SQLitePath)
	setString("FIRESTORE_COLLECTION", &cfg.Store.FirestoreCollection)
	setString("PROJECT_ID", &cfg.GCP.ProjectID)
	setString("VERTEX_REGION", &cfg.GCP.VertexRegion)
	setString("VERTEX_MODEL", &cfg.GCP.VertexModel)
	setString("PAGES_BUCKET", &cfg.GCP.PagesBucket)
	setString("SOURCE_BUCKET", &cfg.GCP.SourceBucket)
	setString("WORKFLOW_ID", &cfg.GCP.WorkflowID)
	setString("WORKFLOW_LOCATION", &cfg.GCP.WorkflowLocation)

	if v := os.Getenv("XTRACT_DEFAULT_ENGINE"); v != "" {
		cfg.Pipeline.DefaultEngine = models.EngineName(v)
	}
	if v := os.Getenv("XTRACT_STORE_PAGE_IMAGES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Pipeline.StorePageImages = b
		}
	}
	setString("XTRACT_IMAGE_DIR", &cfg.Pipeline.ImageDir)

	// Names kept from the first deployment.
	if v := os.Getenv("DEEPSEEK_OCR_API_URL"); v != "" {
		s := cfg.Engines[models.EngineDeepSeek]
		s.APIURL = v
		s.Mode = "api"
		s.Provider = "http"
		cfg.Engines[models.EngineDeepSeek] = s
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		s := cfg.Engines[models.EngineDeepSeek]
		if s.Provider == "ollama" {
			s.APIURL = v
			cfg.Engines[models.EngineDeepSeek] = s
		}
	}

	for _, name := range models.Engines {
		prefix := "XTRACT_" + strings.ToUpper(string(name)) + "_"
		s, ok := cfg.Engines[name]
		if !ok {
			continue
		}
		if v := os.Getenv(prefix + "ENABLED"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				s.Enabled = b
			}
		}
		setString(prefix+"MODE", &s.Mode)
		setString(prefix+"API_URL", &s.APIURL)
		setString(prefix+"API_KEY", &s.APIKey)
		setString(prefix+"MODEL", &s.Model)
		setString(prefix+"PROVIDER", &s.Provider)
		setString(prefix+"COMMAND", &s.Command)
		if v := os.Getenv(prefix + "TIMEOUT"); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				s.Timeout = d
			}
		}
		cfg.Engines[name] = s
	}
}
