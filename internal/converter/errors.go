package converter

import (
	"errors"
	"fmt"
)

// Kind classifies conversion failures.
type Kind int

const (
	// KindValidation: the request itself is unusable (too few files).
	KindValidation Kind = iota + 1
	// KindFormat: a file's bytes could not be parsed.
	KindFormat
	// KindUnsupported: no handler exists for a file's media type.
	KindUnsupported
	// KindEmpty: nothing could be extracted, or no pages were produced.
	KindEmpty
	// KindInternal: a server-side resource failed.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindFormat:
		return "format"
	case KindUnsupported:
		return "unsupported"
	case KindEmpty:
		return "empty"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching on the kind alone.
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrFormat      = &Error{Kind: KindFormat}
	ErrUnsupported = &Error{Kind: KindUnsupported}
	ErrEmpty       = &Error{Kind: KindEmpty}
	ErrInternal    = &Error{Kind: KindInternal}
)

// Error is a conversion failure. Its message is safe to show to the user.
type Error struct {
	Kind Kind
	// File is the name of the input that failed, empty for request-level
	// failures.
	File string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnsupported:
		if errors.Is(e.Err, errNotPDF) {
			return fmt.Sprintf("File %q is not a PDF and cannot be merged.", e.File)
		}
		return fmt.Sprintf("File type for %q is not supported for conversion.", e.File)
	case KindFormat:
		return fmt.Sprintf("Failed to read %q: %v", e.File, e.Err)
	case KindEmpty:
		if e.File == "" {
			return "The conversion produced no pages."
		}
		return fmt.Sprintf("No content could be extracted from %q.", e.File)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. A target with a
// file name also has to match the file.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.File == "" || t.File == e.File)
}

// errNotPDF marks a merge input whose declared type is not application/pdf.
var errNotPDF = errors.New("not a PDF")

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Err: errors.New(msg)}
}
