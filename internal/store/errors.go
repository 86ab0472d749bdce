package store

import (
	"errors"
	"fmt"
)

// ErrDuplicateID is returned by CreateNext when the requested id is taken.
var ErrDuplicateID = errors.New("task id already exists")

// StorageError reports a failure to load, encode or save the task collection.
// When a mutation fails with a StorageError the collection is left unchanged.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s tasks: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
