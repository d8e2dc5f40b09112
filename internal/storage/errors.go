package storage

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrAuditRecordNotFound is returned by single-record lookups when no
// matching row exists. List and range queries return empty instead.
var ErrAuditRecordNotFound = errors.New("audit record not found")

// PersistenceError wraps a storage-level failure: unreachable database,
// constraint violation or transaction failure. The caller owns any retry
// decision; a failed insert leaves no partial row behind.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	var pqErr *pq.Error
	if errors.As(e.Err, &pqErr) {
		return fmt.Sprintf("failed to %s: %v (pq: %s)", e.Op, e.Err, pqErr.Code.Name())
	}
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsConstraintViolation reports whether err carries a Postgres integrity
// constraint error (class 23). Those are not transient and retrying the
// same record will not help.
func IsConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == "23"
}
