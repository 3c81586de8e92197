package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and dry runs.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string]models.Document
	pages map[string]map[int]models.Page
}

func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]models.Document),
		pages: make(map[string]map[int]models.Page),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *Memory) SaveDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	m.docs[doc.ID] = *doc
	return nil
}

func (m *Memory) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) FindByHash(ctx context.Context, fileHash string) (*models.Document, error) {
	docs, _ := m.ListDocuments(ctx)
	for _, d := range docs {
		if d.FileHash == fileHash {
			return d, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) update(id string, fn func(d *models.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	fn(&d)
	d.UpdatedAt = time.Now().UTC()
	m.docs[id] = d
	return nil
}

func (m *Memory) UpdateEngine(ctx context.Context, id string, engine models.EngineName) error {
	return m.update(id, func(d *models.Document) { d.OCREngine = engine })
}

func (m *Memory) MarkProcessing(ctx context.Context, id string) error {
	return m.update(id, func(d *models.Document) { d.Status = models.StatusProcessing })
}

func (m *Memory) MarkProcessed(ctx context.Context, id string, engine models.EngineName, pageCount int) error {
	return m.update(id, func(d *models.Document) {
		d.Status = models.StatusProcessed
		d.ProcessedEngine = engine
		d.PageCount = pageCount
		d.ErrorDetails = ""
	})
}

func (m *Memory) MarkFailed(ctx context.Context, id string, details string) error {
	return m.update(id, func(d *models.Document) {
		d.Status = models.StatusFailed
		d.ErrorDetails = details
	})
}

func (m *Memory) DeletePages(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, documentID)
	return nil
}

func (m *Memory) UpsertPage(ctx context.Context, page models.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byNum, ok := m.pages[page.DocumentID]
	if !ok {
		byNum = make(map[int]models.Page)
		m.pages[page.DocumentID] = byNum
	}
	if old, ok := byNum[page.PageNumber]; ok && !old.CreatedAt.IsZero() {
		page.CreatedAt = old.CreatedAt
	}
	byNum[page.PageNumber] = page
	return nil
}

func (m *Memory) ListPages(ctx context.Context, documentID string) ([]models.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Page, 0, len(m.pages[documentID]))
	for _, p := range m.pages[documentID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}
