package treedb

import (
	"errors"

	"github.com/maruel/treedb/internal/codec"
	"github.com/maruel/treedb/internal/observer"
	"github.com/maruel/treedb/internal/persist"
	"github.com/maruel/treedb/internal/tree"
)

// Error kinds. Every error returned by a [DB] method is an [*OpError]
// matching one of them with errors.Is.
var (
	ErrNotFound         = tree.ErrNotFound
	ErrAlreadyExists    = tree.ErrAlreadyExists
	ErrInvalidData      = tree.ErrInvalidData
	ErrInvalidPath      = tree.ErrInvalidPath
	ErrInvalidIncrement = tree.ErrInvalidIncrement
	ErrIO               = persist.ErrIO
	ErrNoBackupFound    = persist.ErrNoBackupFound
	ErrCorruptData      = codec.ErrCorruptData
	ErrDecryptionFailed = codec.ErrDecryptionFailed
	ErrConfiguration    = codec.ErrConfiguration
	ErrObserver         = observer.ErrObserver
	// ErrClosed is returned by every method called after [DB.Close].
	ErrClosed = errors.New("database closed")
)

// OpError records the operation and path that failed.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Path: path, Err: err}
}
