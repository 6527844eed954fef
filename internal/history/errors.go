package history

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is wrapped by a TransientStorageError when concurrent writers from other
// processes kept claiming the next sequence number.
var ErrRetriesExhausted = errors.New("history: sequence contention retries exhausted")

// TransientStorageError reports that an append failed in the backing store and may be retried.
// No sequence number was committed.
type TransientStorageError struct {
	ProjectID string
	Op        string
	Err       error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("history: %s project %s: %v", e.Op, e.ProjectID, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// Retryable is always true.
func (e *TransientStorageError) Retryable() bool { return true }

// IsTransient reports whether err is (or wraps) a TransientStorageError.
func IsTransient(err error) bool {
	var te *TransientStorageError
	return errors.As(err, &te)
}
