package extraction

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/xtractme/internal/models"
)

// Kind classifies an extraction failure.
type Kind string

const (
	KindUnavailable  Kind = "unavailable"
	KindEngine       Kind = "engine"
	KindEmpty        Kind = "empty"
	KindTimeout      Kind = "timeout"
	KindPrecondition Kind = "precondition"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrUnavailable  = errors.New("engine unavailable")
	ErrEngine       = errors.New("engine error")
	ErrEmpty        = errors.New("degenerate result")
	ErrTimeout      = errors.New("engine timeout")
	ErrPrecondition = errors.New("precondition failed")
)

var kindSentinels = map[Kind]error{
	KindUnavailable:  ErrUnavailable,
	KindEngine:       ErrEngine,
	KindEmpty:        ErrEmpty,
	KindTimeout:      ErrTimeout,
	KindPrecondition: ErrPrecondition,
}

// Error is the typed outcome of a failed adapter invocation.
type Error struct {
	Kind       Kind
	Engine     models.EngineName
	DocumentID string
	PageNumber int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Kind)
	if e.Engine != "" {
		prefix += " " + string(e.Engine)
	}
	if e.PageNumber > 0 {
		prefix += fmt.Sprintf(" page %d", e.PageNumber)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Unavailable reports that an engine's runtime dependency is missing.
func Unavailable(engine models.EngineName, reason string) *Error {
	return &Error{Kind: KindUnavailable, Engine: engine, Message: reason}
}

// EngineError wraps a failure raised while an engine was running.
func EngineError(engine models.EngineName, message string, err error) *Error {
	return &Error{Kind: KindEngine, Engine: engine, Message: message, Err: err}
}

// Empty reports a result that completed but carries no usable content.
func Empty(engine models.EngineName, message string) *Error {
	return &Error{Kind: KindEmpty, Engine: engine, Message: message}
}

// Timeout reports an engine call that exceeded its bound.
func Timeout(engine models.EngineName, message string, err error) *Error {
	return &Error{Kind: KindTimeout, Engine: engine, Message: message, Err: err}
}

// AsError coerces any error into an *Error, defaulting to KindEngine.
func AsError(engine models.EngineName, err error) *Error {
	if err == nil {
		return nil
	}
	var xe *Error
	if errors.As(err, &xe) {
		if xe.Engine == "" {
			xe.Engine = engine
		}
		return xe
	}
	return EngineError(engine, "engine call failed", err)
}

// WithPage annotates the error with document and page context.
func (e *Error) WithPage(documentID string, page int) *Error {
	e.DocumentID = documentID
	e.PageNumber = page
	return e
}
