package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/xtractme/internal/gcp"
	"github.com/Lllllllleong/xtractme/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const pagesCollection = "pages"

// Firestore stores documents in a collection and their pages in a "pages"
// subcollection keyed by zero-padded page number.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// OpenFirestore creates a client for projectID. An empty collection
// defaults to "documents".
func OpenFirestore(ctx context.Context, projectID, collection string) (*Firestore, error) {
	client, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return NewFirestore(client, collection), nil
}

// NewFirestore wraps an existing client.
func NewFirestore(client *firestore.Client, collection string) *Firestore {
	if collection == "" {
		collection = "documents"
	}
	return &Firestore{client: client, collection: collection}
}

func (f *Firestore) Close() error { return f.client.Close() }

func (f *Firestore) docRef(id string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(id)
}

func (f *Firestore) pageRef(documentID string, pageNumber int) *firestore.DocumentRef {
	return f.docRef(documentID).Collection(pagesCollection).Doc(fmt.Sprintf("%05d", pageNumber))
}

func toDocument(snap *firestore.DocumentSnapshot) (*models.Document, error) {
	var d models.Document
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
	}
	d.ID = snap.Ref.ID
	return &d, nil
}

func (f *Firestore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	snap, err := f.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return toDocument(snap)
}

func (f *Firestore) SaveDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = f.client.Collection(f.collection).NewDoc().ID
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if _, err := f.docRef(doc.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

func (f *Firestore) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	iter := f.client.Collection(f.collection).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*models.Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		d, err := toDocument(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *Firestore) FindByHash(ctx context.Context, fileHash string) (*models.Document, error) {
	docs, err := f.client.Collection(f.collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return toDocument(docs[0])
}

func (f *Firestore) update(ctx context.Context, id string, updates ...firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now().UTC()})
	_, err := f.docRef(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return nil
}

func (f *Firestore) UpdateEngine(ctx context.Context, id string, engine models.EngineName) error {
	return f.update(ctx, id, firestore.Update{Path: "ocrEngine", Value: string(engine)})
}

func (f *Firestore) MarkProcessing(ctx context.Context, id string) error {
	return f.update(ctx, id, firestore.Update{Path: "status", Value: models.StatusProcessing})
}

func (f *Firestore) MarkProcessed(ctx context.Context, id string, engine models.EngineName, pageCount int) error {
	return f.update(ctx, id,
		firestore.Update{Path: "status", Value: models.StatusProcessed},
		firestore.Update{Path: "processedEngine", Value: string(engine)},
		firestore.Update{Path: "pageCount", Value: pageCount},
		firestore.Update{Path: "errorDetails", Value: firestore.Delete},
	)
}

func (f *Firestore) MarkFailed(ctx context.Context, id string, details string) error {
	return f.update(ctx, id,
		firestore.Update{Path: "status", Value: models.StatusFailed},
		firestore.Update{Path: "errorDetails", Value: details},
	)
}

func (f *Firestore) DeletePages(ctx context.Context, documentID string) error {
	refs := f.docRef(documentID).Collection(pagesCollection).DocumentRefs(ctx)
	bw := f.client.BulkWriter(ctx)
	var jobs []writeJob
	for {
		ref, err := refs.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to list pages of %s: %w", documentID, err)
		}
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue delete of %s: %w", ref.Path, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()
	if err := firstJobError(jobs); err != nil {
		return fmt.Errorf("failed to delete pages of %s: %w", documentID, err)
	}
	return nil
}

// writeJob is the part of *firestore.BulkWriterJob read after a flush.
type writeJob interface {
	Results() (*firestore.WriteResult, error)
}

// firstJobError waits for every job and returns the first failure.
func firstJobError(jobs []writeJob) error {
	var first error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f *Firestore) UpsertPage(ctx context.Context, page models.Page) error {
	if _, err := f.pageRef(page.DocumentID, page.PageNumber).Set(ctx, page); err != nil {
		return fmt.Errorf("failed to upsert page %d of %s: %w", page.PageNumber, page.DocumentID, err)
	}
	return nil
}

func (f *Firestore) ListPages(ctx context.Context, documentID string) ([]models.Page, error) {
	iter := f.docRef(documentID).Collection(pagesCollection).OrderBy("pageNumber", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []models.Page
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list pages of %s: %w", documentID, err)
		}
		var p models.Page
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to decode page %s: %w", snap.Ref.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}
