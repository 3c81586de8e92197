package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/xtractme/internal/config"
	"github.com/Lllllllleong/xtractme/internal/engines"
	"github.com/Lllllllleong/xtractme/internal/gcp"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/pipeline"
	"github.com/Lllllllleong/xtractme/internal/store"
)

// Runtime holds the clients shared by the Cloud Functions.
type Runtime struct {
	Config   *config.Config
	Store    store.Store
	Storage  *storage.Client
	Pipeline *pipeline.Service
	Workflow WorkflowStarter

	vertex       *gcp.VertexClient
	closeEngines func() error
}

// WorkflowStarter hands a processed document to the downstream workflow.
type WorkflowStarter interface {
	Trigger(ctx context.Context, payload models.WorkflowPayload) (string, error)
}

// NewRuntime loads configuration from XTRACT_CONFIG and the environment and
// connects to Firestore, Cloud Storage, Vertex AI and Workflows.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	cfg, err := config.Load(gcp.GetEnv("XTRACT_CONFIG", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.GCP.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	cfg.Store.Driver = gcp.GetEnv("XTRACT_STORE_DRIVER", "firestore")

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	rt := &Runtime{Config: cfg, Store: st, Storage: storageClient}

	var opts engines.Options
	if usesVertex(cfg) {
		rt.vertex, err = gcp.NewVertexClient(ctx, cfg.GCP.ProjectID, cfg.GCP.VertexRegion, cfg.GCP.VertexModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		opts.Vertex = rt.vertex
	}
	if cfg.GCP.SourceBucket != "" {
		opts.Publisher = gcp.SignedURLPublisher{Bucket: storageClient.Bucket(cfg.GCP.SourceBucket), Prefix: "mineru/"}
	}
	registry, closeEngines := engines.Build(cfg, opts)
	rt.closeEngines = closeEngines

	orch := pipeline.New(registry, st, st, pipeline.OptionsFromConfig(cfg, imageSink(cfg, storageClient)))
	rt.Pipeline = pipeline.NewService(orch, st, st).WithFetcher(gcp.GCSFetcher{Client: storageClient})

	trigger, err := gcp.NewWorkflowTrigger(ctx, cfg.GCP.ProjectID, cfg.GCP.WorkflowLocation, cfg.GCP.WorkflowID)
	if err != nil {
		return nil, err
	}
	if trigger != nil {
		rt.Workflow = trigger
	}

	slog.Info("Runtime initialized.", "store", cfg.Store.Driver, "workflowId", cfg.GCP.WorkflowID)
	return rt, nil
}

func usesVertex(cfg *config.Config) bool {
	for _, s := range cfg.Engines {
		if s.Enabled && s.Provider == "vertex" {
			return true
		}
	}
	return false
}

func imageSink(cfg *config.Config, client *storage.Client) pipeline.ImageSink {
	if !cfg.Pipeline.StorePageImages {
		return nil
	}
	if cfg.GCP.PagesBucket != "" {
		return gcp.BucketImageSink{Bucket: client.Bucket(cfg.GCP.PagesBucket), Name: cfg.GCP.PagesBucket}
	}
	return pipeline.DirSink{Dir: cfg.Pipeline.ImageDir}
}

// Close releases every client.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.closeEngines != nil {
		errs = append(errs, rt.closeEngines())
	}
	if rt.vertex != nil {
		errs = append(errs, rt.vertex.Close())
	}
	errs = append(errs, rt.Storage.Close(), rt.Store.Close())
	return errors.Join(errs...)
}
