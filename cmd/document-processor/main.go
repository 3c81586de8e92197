package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/xtractme/internal/gcp"
	"github.com/Lllllllleong/xtractme/internal/logging"
	"github.com/Lllllllleong/xtractme/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	processorInstance *services.ProcessorFunction
	once              sync.Once
	initErr           error
)

func init() {
	logging.Init(gcp.GetEnv("LOG_LEVEL", "info"), "json", os.Stdout)

	functions.CloudEvent("ProcessDocument", processDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// processDocument handles storage object finalized events.
func processDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		processorInstance, initErr = services.NewProcessor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Returning an error marks the invocation failed so the event is retried.
	return processorInstance.Process(ctx, gcsEvent)
}
