package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/xtractme/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	file_path        TEXT NOT NULL DEFAULT '',
	source_uri       TEXT NOT NULL DEFAULT '',
	file_hash        TEXT NOT NULL DEFAULT '',
	kind             TEXT NOT NULL DEFAULT '',
	ocr_engine       TEXT NOT NULL DEFAULT '',
	processed_engine TEXT NOT NULL DEFAULT '',
	page_count       INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT '',
	error_details    TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_file_hash ON documents(file_hash);

CREATE TABLE IF NOT EXISTS pages (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	page_number INTEGER NOT NULL,
	text        TEXT NOT NULL DEFAULT '',
	json_data   TEXT NOT NULL DEFAULT '{}',
	image_ref   TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (document_id, page_number)
);
`

const documentColumns = `id, title, description, file_path, source_uri, file_hash, kind,
	ocr_engine, processed_engine, page_count, status, error_details, created_at, updated_at`

// SQLite is a Store backed by a local SQLite file.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and ensures the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps PRAGMAs and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var (
		d                    models.Document
		kind, ocr, processed string
		created, updated     int64
	)
	err := row.Scan(&d.ID, &d.Title, &d.Description, &d.FilePath, &d.SourceURI, &d.FileHash, &kind,
		&ocr, &processed, &d.PageCount, &d.Status, &d.ErrorDetails, &created, &updated)
	if err != nil {
		return nil, err
	}
	d.Kind = models.Kind(kind)
	d.OCREngine = models.EngineName(ocr)
	d.ProcessedEngine = models.EngineName(processed)
	d.CreatedAt = time.Unix(0, created).UTC()
	d.UpdatedAt = time.Unix(0, updated).UTC()
	return &d, nil
}

func (s *SQLite) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return d, nil
}

func (s *SQLite) SaveDocument(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			file_path = excluded.file_path,
			source_uri = excluded.source_uri,
			file_hash = excluded.file_hash,
			kind = excluded.kind,
			ocr_engine = excluded.ocr_engine,
			processed_engine = excluded.processed_engine,
			page_count = excluded.page_count,
			status = excluded.status,
			error_details = excluded.error_details,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Title, doc.Description, doc.FilePath, doc.SourceURI, doc.FileHash, string(doc.Kind),
		string(doc.OCREngine), string(doc.ProcessedEngine), doc.PageCount, doc.Status, doc.ErrorDetails,
		doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLite) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLite) FindByHash(ctx context.Context, fileHash string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE file_hash = ? ORDER BY created_at LIMIT 1", fileHash)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	return d, nil
}

func (s *SQLite) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) UpdateEngine(ctx context.Context, id string, engine models.EngineName) error {
	return s.exec(ctx, id, "UPDATE documents SET ocr_engine = ?, updated_at = ? WHERE id = ?",
		string(engine), time.Now().UnixNano(), id)
}

func (s *SQLite) MarkProcessing(ctx context.Context, id string) error {
	return s.exec(ctx, id, "UPDATE documents SET status = ?, updated_at = ? WHERE id = ?",
		models.StatusProcessing, time.Now().UnixNano(), id)
}

func (s *SQLite) MarkProcessed(ctx context.Context, id string, engine models.EngineName, pageCount int) error {
	return s.exec(ctx, id, `UPDATE documents
		SET status = ?, processed_engine = ?, page_count = ?, error_details = '', updated_at = ?
		WHERE id = ?`,
		models.StatusProcessed, string(engine), pageCount, time.Now().UnixNano(), id)
}

func (s *SQLite) MarkFailed(ctx context.Context, id string, details string) error {
	return s.exec(ctx, id, "UPDATE documents SET status = ?, error_details = ?, updated_at = ? WHERE id = ?",
		models.StatusFailed, details, time.Now().UnixNano(), id)
}

func (s *SQLite) DeletePages(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pages WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete pages of %s: %w", documentID, err)
	}
	return nil
}

func (s *SQLite) UpsertPage(ctx context.Context, page models.Page) error {
	data, err := json.Marshal(page.JSONData)
	if err != nil {
		return fmt.Errorf("failed to marshal page %d: %w", page.PageNumber, err)
	}
	now := time.Now().UTC()
	if page.CreatedAt.IsZero() {
		page.CreatedAt = now
	}
	if page.UpdatedAt.IsZero() {
		page.UpdatedAt = now
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pages (document_id, page_number, text, json_data, image_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, page_number) DO UPDATE SET
			text = excluded.text,
			json_data = excluded.json_data,
			image_ref = excluded.image_ref,
			updated_at = excluded.updated_at`,
		page.DocumentID, page.PageNumber, page.Text, string(data), page.ImageRef,
		page.CreatedAt.UnixNano(), page.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert page %d of %s: %w", page.PageNumber, page.DocumentID, err)
	}
	return nil
}

func (s *SQLite) ListPages(ctx context.Context, documentID string) ([]models.Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, page_number, text, json_data, image_ref, created_at, updated_at
		FROM pages WHERE document_id = ? ORDER BY page_number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages of %s: %w", documentID, err)
	}
	defer rows.Close()

	var out []models.Page
	for rows.Next() {
		var (
			p                models.Page
			data             string
			created, updated int64
		)
		if err := rows.Scan(&p.DocumentID, &p.PageNumber, &p.Text, &data, &p.ImageRef, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &p.JSONData); err != nil {
			return nil, fmt.Errorf("failed to decode page %d json: %w", p.PageNumber, err)
		}
		p.CreatedAt = time.Unix(0, created).UTC()
		p.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
