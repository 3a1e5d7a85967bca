// Package liberr defines the error kinds shared by the library core.
package liberr

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the core wraps exactly one of these.
var (
	// ErrNotFound indicates a missing library file, attachment, document or folder.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a library file already exists at the target path.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNameConflict indicates a folder name collides with a sibling.
	ErrNameConflict = errors.New("folder name conflict")

	// ErrCorrupt indicates a database integrity violation. Fatal to the session.
	ErrCorrupt = errors.New("library database is corrupt")

	// ErrVersionMismatch indicates the library was written by a newer schema major version.
	ErrVersionMismatch = errors.New("library schema version mismatch")

	// ErrIO indicates a filesystem failure during attach or detach.
	ErrIO = errors.New("i/o error")

	// ErrParse indicates a codec could not decode a record.
	ErrParse = errors.New("parse error")

	// ErrNetwork indicates a DOI lookup timeout or HTTP failure.
	ErrNetwork = errors.New("network error")

	// ErrCanceled indicates a batch job was aborted cooperatively.
	ErrCanceled = errors.New("canceled")
)

var kinds = []error{
	ErrNotFound, ErrAlreadyExists, ErrNameConflict, ErrCorrupt,
	ErrVersionMismatch, ErrIO, ErrParse, ErrNetwork, ErrCanceled,
}

// Error carries a kind together with the operation and subject that failed.
type Error struct {
	Kind error  // One of the Err* sentinels
	Op   string // Operation, e.g. "write document"
	Path string // File path or record identifier, optional
	Err  error  // Underlying cause, optional
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if msg != "" {
		msg += ": "
	}
	msg += e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an *Error of the given kind.
func New(kind error, op, path string, cause error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// Errorf wraps a formatted message with a kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind sentinel wrapped by err, or nil if err has none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsFatal reports whether err must end the library session.
func IsFatal(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
