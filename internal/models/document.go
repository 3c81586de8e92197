package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Kind is the detected type of an uploaded source file.
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindUnknown Kind = "unknown"
)

// Document statuses tracked on the master record.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusProcessed  = "PROCESSED"
	StatusFailed     = "FAILED"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// Document represents the main record for an uploaded source artifact.
// It tracks the selected OCR engine and the outcome of the last processing run.
type Document struct {
	ID              string     `firestore:"-" json:"id"`
	Title           string     `firestore:"title,omitempty" json:"title"`
	Description     string     `firestore:"description,omitempty" json:"description,omitempty"`
	FilePath        string     `firestore:"filePath,omitempty" json:"filePath,omitempty"`
	SourceURI       string     `firestore:"sourceUri,omitempty" json:"sourceUri,omitempty"`
	FileHash        string     `firestore:"fileHash,omitempty" json:"fileHash,omitempty"`
	Kind            Kind       `firestore:"fileType,omitempty" json:"fileType"`
	OCREngine       EngineName `firestore:"ocrEngine,omitempty" json:"ocrEngine"`
	ProcessedEngine EngineName `firestore:"processedEngine,omitempty" json:"processedEngine,omitempty"`
	PageCount       int        `firestore:"pageCount,omitempty" json:"pageCount"`
	Status          string     `firestore:"status,omitempty" json:"status"`
	ErrorDetails    string     `firestore:"errorDetails,omitempty" json:"errorDetails,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt,omitempty" json:"updatedAt"`
}

// DetectKind maps a file name to a Kind by extension.
func DetectKind(name string) Kind {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".pdf" {
		return KindPDF
	}
	if imageExtensions[ext] {
		return KindImage
	}
	return KindUnknown
}

// ResolveKind fills in Kind from the file name when it has not been set yet.
// It reports whether the document was modified.
func (d *Document) ResolveKind() bool {
	if d.Kind != "" {
		return false
	}
	name := d.FilePath
	if name == "" {
		name = d.SourceURI
	}
	d.Kind = DetectKind(name)
	return true
}

// HasFile reports whether a source file is attached.
func (d *Document) HasFile() bool {
	return strings.TrimSpace(d.FilePath) != ""
}

func (d *Document) String() string {
	if d.Title != "" {
		return d.Title
	}
	return "Document " + d.ID
}
