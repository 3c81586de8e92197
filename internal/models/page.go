package models

import (
	"encoding/json"
	"time"
)

// Page is one normalized extraction result, unique by (DocumentID, PageNumber).
type Page struct {
	DocumentID string         `firestore:"documentId" json:"documentId"`
	PageNumber int            `firestore:"pageNumber" json:"pageNumber"`
	Text       string         `firestore:"text" json:"text"`
	JSONData   map[string]any `firestore:"jsonData,omitempty" json:"jsonData,omitempty"`
	ImageRef   string         `firestore:"imageRef,omitempty" json:"imageRef,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt  time.Time      `firestore:"updatedAt,omitempty" json:"updatedAt"`
}

// JSONPreview returns the page payload indented for display.
func (p *Page) JSONPreview() string {
	if len(p.JSONData) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(p.JSONData, "", "    ")
	if err != nil {
		return ""
	}
	return string(b)
}

// TotalPages counts the distinct page numbers in a page set.
func TotalPages(pages []Page) int {
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		seen[p.PageNumber] = true
	}
	return len(seen)
}

// TotalTextLength sums the text length over a page set.
func TotalTextLength(pages []Page) int {
	n := 0
	for _, p := range pages {
		n += len(p.Text)
	}
	return n
}
