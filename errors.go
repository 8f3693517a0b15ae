package filestore

import (
	"errors"
	"os"
)

// Storage errors. The first group aliases the os package errors so callers can
// keep using os.IsNotExist and friends.
var (
	ErrNotFound   = os.ErrNotExist
	ErrExist      = os.ErrExist
	ErrPermission = os.ErrPermission
	ErrInvalid    = os.ErrInvalid

	ErrIsDir         = errors.New("filestore: is a directory")
	ErrNotDir        = errors.New("filestore: not a directory")
	ErrClosed        = errors.New("filestore: already closed")
	ErrNotSupported  = errors.New("filestore: feature not supported by this backend")
	ErrStreamNotOpen = errors.New("filestore: stream is not open")
	ErrInvalidMode   = errors.New("filestore: stream mode not supported")
)
