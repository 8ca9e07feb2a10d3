package media

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPlatform is returned for URLs outside the platform allowlist.
	ErrUnsupportedPlatform = errors.New("url not supported")

	// ErrNoFileProduced means the extractor reported success but left no file behind.
	ErrNoFileProduced = errors.New("no file was created")

	// ErrNotFound covers unknown, expired and vanished artifact handles.
	ErrNotFound = errors.New("file not found or expired")
)

// ValidationError represents a missing or malformed field in a client request.
type ValidationError struct {
	Field  string // Request field that failed validation
	Reason string // Human-readable explanation
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrorKind is the closed set of extraction failure categories.
type ErrorKind int

const (
	KindFailure ErrorKind = iota
	KindChallenge
	KindForbidden
	KindNotFound
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindChallenge:
		return "challenge"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	default:
		return "failure"
	}
}

// ExtractionError wraps a failure reported by the extraction tool.
type ExtractionError struct {
	Kind    ErrorKind // Classified category
	Message string    // Raw tool output, truncated
	Err     error     // Underlying error, if any
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): %s", e.Kind, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// KindOf returns the extraction kind carried by err, or KindFailure.
func KindOf(err error) ErrorKind {
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return extErr.Kind
	}

	return KindFailure
}
