package store

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotConfigured is returned by a Dialer whose store address is empty.
var ErrNotConfigured = errors.New("store address not configured")

// RowNotFoundError reports that the store returned zero rows for ID.
type RowNotFoundError struct {
	ID string
}

func (e *RowNotFoundError) Error() string {
	return fmt.Sprintf("row not found: %s", e.ID)
}

// DBError wraps a transport or server failure from the underlying store.
type DBError struct {
	Op    string
	Cause error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("db error: %s: %v", e.Op, e.Cause)
}

func (e *DBError) Unwrap() error { return e.Cause }

// Wrap turns err into a *DBError for op. Errors that are already typed store
// errors pass through unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var nf *RowNotFoundError
	if errors.As(err, &nf) {
		return err
	}
	var db *DBError
	if errors.As(err, &db) {
		return err
	}
	return &DBError{Op: op, Cause: err}
}

// IsNotFound reports whether err is, or wraps, a *RowNotFoundError.
func IsNotFound(err error) bool {
	var nf *RowNotFoundError
	return errors.As(err, &nf)
}
