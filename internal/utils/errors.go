package utils

import (
	"strings"
)

// transientErrorMarkers are substrings of storage and network failures
// that a retry can plausibly fix: unreachable database, dropped
// connection, storage-side timeout.
var transientErrorMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"too many connections",
	"the database system is starting up",
	"deadline exceeded",
}

// IsRecoverableError reports whether the failure is transient and the
// ingest worker should retry the record instead of dead-lettering it.
func IsRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	for _, marker := range transientErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
