package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/xtractme/internal/gcp"
	"github.com/Lllllllleong/xtractme/internal/logging"
	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/Lllllllleong/xtractme/internal/services"
)

var (
	reprocessorInstance *services.ReprocessorFunction
	once                sync.Once
	initErr             error
)

func init() {
	logging.Init(gcp.GetEnv("LOG_LEVEL", "info"), "json", os.Stdout)

	functions.HTTP("HandleReprocess", handleReprocess)
}

// main is required by the Go Functions Framework.
func main() {}

func handleReprocess(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		reprocessorInstance, initErr = services.NewReprocessor(context.Background())
	})
	if initErr != nil {
		slog.Error("Reprocessor initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ReprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := reprocessorInstance.Process(r.Context(), &req)
	if err != nil {
		// Already logged inside Process.
		http.Error(w, err.Error(), services.StatusCode(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
