package pipeline

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/xtractme/internal/extraction"
)

// PreconditionError reports a document that cannot be processed at all: no
// file, a missing file, an unopenable or zero-page PDF, or an unknown kind.
// It is the only extraction failure returned to callers.
type PreconditionError struct {
	DocumentID string
	Reason     string
	Err        error
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("document %s: %s", e.DocumentID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Is matches extraction.ErrPrecondition.
func (e *PreconditionError) Is(target error) bool {
	return target == extraction.ErrPrecondition
}

func precondition(docID, reason string, err error) *PreconditionError {
	return &PreconditionError{DocumentID: docID, Reason: reason, Err: err}
}

// IsPrecondition reports whether err is or wraps a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
