package tree

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a path or one of its ancestors is absent.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when inserting onto an existing path.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidData is returned when a value fails validation.
	ErrInvalidData = errors.New("invalid data")
	// ErrInvalidPath is returned for malformed paths. It matches
	// [ErrInvalidData] with errors.Is.
	ErrInvalidPath = fmt.Errorf("%w: invalid path", ErrInvalidData)
	// ErrInvalidIncrement is returned when an increment edit cannot apply.
	ErrInvalidIncrement = errors.New("invalid increment")
)
