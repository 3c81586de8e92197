package pipeline

import "github.com/Lllllllleong/xtractme/internal/models"

// NeedsProcessing reports whether doc must be (re)processed: it was never
// processed, it has no pages, or its engine changed since the last run.
// Changes to any other field never trigger processing.
func NeedsProcessing(doc *models.Document, pageCount int) bool {
	if doc.ProcessedEngine == "" || pageCount == 0 {
		return true
	}
	return canonical(doc.OCREngine) != canonical(doc.ProcessedEngine)
}

func canonical(e models.EngineName) models.EngineName {
	if name, ok := models.ParseEngine(string(e)); ok {
		return name
	}
	return models.DefaultEngine
}
