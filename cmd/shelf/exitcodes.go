package main

import (
	"errors"

	"github.com/matsen/bibshelf/internal/config"
	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
)

// Exit codes
const (
	ExitSuccess      = 0 // Success
	ExitError        = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError  = 2 // Configuration error (invalid settings, unknown key)
	ExitDataError    = 3 // Data error (parse failure, name arity)
	ExitNotFound     = 4 // Library, document, folder or attachment missing
	ExitConflict     = 5 // Name conflict or library already exists
	ExitIOError      = 6 // Filesystem failure
	ExitNetworkError = 7 // DOI lookup failed
	ExitCorrupt      = 8 // Library database corrupt or written by a newer version
	ExitPartial      = 9 // Batch finished with some failures
)

// exitCodeFor maps an error to the exit code of its kind.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid):
		return ExitConfigError
	case errors.Is(err, docmeta.ErrNameArity):
		return ExitDataError
	}
	switch liberr.KindOf(err) {
	case liberr.ErrNotFound:
		return ExitNotFound
	case liberr.ErrNameConflict, liberr.ErrAlreadyExists:
		return ExitConflict
	case liberr.ErrIO:
		return ExitIOError
	case liberr.ErrParse:
		return ExitDataError
	case liberr.ErrNetwork:
		return ExitNetworkError
	case liberr.ErrCorrupt, liberr.ErrVersionMismatch:
		return ExitCorrupt
	}
	return ExitError
}
