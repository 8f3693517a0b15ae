package manager

import (
	"errors"
	"fmt"

	"github.com/nuln/filestore"
)

var (
	// ErrInvalidArgument reports an empty file name or local path. It is
	// returned before any I/O.
	ErrInvalidArgument = fmt.Errorf("manager: invalid argument: %w", filestore.ErrInvalid)

	// ErrNotFound is returned by the strict lookups when a file is absent.
	ErrNotFound = filestore.ErrNotFound

	// ErrProtocolNotConfigured is returned by FilePath without a protocol.
	ErrProtocolNotConfigured = errors.New("manager: protocol is not configured")

	// ErrFlushFailed reports that a destination stream could not be flushed.
	// The stream has been closed when it is returned.
	ErrFlushFailed = errors.New("manager: flush failed")

	// ErrIO reports a failed local filesystem operation.
	ErrIO = errors.New("manager: i/o failure")
)

func invalidArgument(what string) error {
	return fmt.Errorf("%w: %s is empty", ErrInvalidArgument, what)
}
