package models

// These structs define the JSON payloads exchanged with the Cloud Functions
// and the downstream workflow.

// ReprocessRequest is the input for the document-reprocessor function.
type ReprocessRequest struct {
	DocumentID  string `json:"documentId"`
	OCREngine   string `json:"ocrEngine,omitempty"`
	Force       bool   `json:"force,omitempty"`
	ExecutionID string `json:"executionId,omitempty"`
}

// ReprocessResponse is the output of the document-reprocessor function.
type ReprocessResponse struct {
	Status    string     `json:"status"`
	Processed bool       `json:"processed"`
	OCREngine EngineName `json:"ocrEngine"`
	PageCount int        `json:"pageCount"`
}

// WorkflowPayload is handed to the downstream workflow once pages are stored.
type WorkflowPayload struct {
	DocumentID string     `json:"documentId"`
	PageCount  int        `json:"pageCount"`
	OCREngine  EngineName `json:"ocrEngine"`
}
