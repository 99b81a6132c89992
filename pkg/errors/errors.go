// Package errors defines the sentinel and typed errors shared by the index
// builder, the persistence layer and the query engine, and maps them to HTTP
// status codes for the request dispatcher.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTermNotFound     = errors.New("term not found")
	ErrEmptyCorpus      = errors.New("empty corpus")
	ErrCorruptIndex     = errors.New("corrupt index")
	ErrFolderNotFound   = errors.New("folder not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

// TermNotFoundError reports a query term that has no posting list. It is an
// expected outcome, distinct from a known term set with no common document.
type TermNotFoundError struct {
	Term string
}

func (e *TermNotFoundError) Error() string {
	return fmt.Sprintf("term %q not found in index", e.Term)
}

func (e *TermNotFoundError) Is(target error) bool {
	return target == ErrTermNotFound
}

// NewTermNotFoundError creates a TermNotFoundError for term.
func NewTermNotFoundError(term string) *TermNotFoundError {
	return &TermNotFoundError{Term: term}
}

// EmptyCorpusError is returned by a build over a folder with no documents.
type EmptyCorpusError struct {
	Folder string
}

func (e *EmptyCorpusError) Error() string {
	if e.Folder == "" {
		return "cannot build index: corpus contains no documents"
	}
	return fmt.Sprintf("cannot build index: folder %q contains no documents", e.Folder)
}

func (e *EmptyCorpusError) Is(target error) bool {
	return target == ErrEmptyCorpus
}

// FolderNotFoundError is returned when the corpus folder cannot be enumerated.
type FolderNotFoundError struct {
	Folder string
	Err    error
}

func (e *FolderNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("folder %q cannot be enumerated: %v", e.Folder, e.Err)
	}
	return fmt.Sprintf("folder %q cannot be enumerated", e.Folder)
}

func (e *FolderNotFoundError) Is(target error) bool {
	return target == ErrFolderNotFound
}

func (e *FolderNotFoundError) Unwrap() error {
	return e.Err
}

// CorruptIndexError is returned when persisted index bytes are malformed or
// truncated. Reason is a short description of the failed check.
type CorruptIndexError struct {
	Reason string
	Err    error
}

func (e *CorruptIndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt index: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt index: %s", e.Reason)
}

func (e *CorruptIndexError) Is(target error) bool {
	return target == ErrCorruptIndex
}

func (e *CorruptIndexError) Unwrap() error {
	return e.Err
}

// Corruptf builds a CorruptIndexError with a formatted reason.
func Corruptf(format string, args ...any) *CorruptIndexError {
	return &CorruptIndexError{Reason: fmt.Sprintf(format, args...)}
}

// AppError carries an HTTP status and a user-facing message alongside the
// underlying error.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrTermNotFound), errors.Is(err, ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
