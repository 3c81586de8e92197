// Package store persists documents and their extracted pages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/xtractme/internal/config"
	"github.com/Lllllllleong/xtractme/internal/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// PageStore holds the per-page extraction results of a document. Pages are
// unique by (DocumentID, PageNumber).
type PageStore interface {
	DeletePages(ctx context.Context, documentID string) error
	UpsertPage(ctx context.Context, page models.Page) error
	// ListPages returns pages in ascending page order.
	ListPages(ctx context.Context, documentID string) ([]models.Page, error)
}

// DocumentStore holds the master document records.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// SaveDocument creates or replaces a document. An empty ID is assigned.
	SaveDocument(ctx context.Context, doc *models.Document) error
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	// FindByHash returns the first document with the given file hash, or
	// ErrNotFound.
	FindByHash(ctx context.Context, fileHash string) (*models.Document, error)
	UpdateEngine(ctx context.Context, id string, engine models.EngineName) error
	MarkProcessing(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string, engine models.EngineName, pageCount int) error
	MarkFailed(ctx context.Context, id string, details string) error
}

// Store is a combined document and page store.
type Store interface {
	PageStore
	DocumentStore
	Close() error
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return OpenSQLite(cfg.Store.SQLitePath)
	case "firestore":
		return OpenFirestore(ctx, cfg.GCP.ProjectID, cfg.Store.FirestoreCollection)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
