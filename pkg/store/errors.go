package store

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence marks a failed write. In-memory state is never rolled
	// back because of it.
	ErrPersistence = errors.New("persistence failed")
	ErrStoreClosed = errors.New("store is closed")
)

// PersistenceError reports a write to the key-value store that did not
// succeed.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return ErrPersistence.Error()
	}
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %q: %v", ErrPersistence, e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
