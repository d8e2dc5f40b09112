package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRecoverableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"),
			expected: true,
		},
		{
			name:     "connection reset",
			err:      errors.New("read tcp: connection reset by peer"),
			expected: true,
		},
		{
			name:     "io timeout",
			err:      errors.New("write tcp: i/o timeout"),
			expected: true,
		},
		{
			name:     "pool exhausted",
			err:      errors.New("pq: too many connections for role"),
			expected: true,
		},
		{
			name:     "database starting up",
			err:      errors.New("pq: the database system is starting up"),
			expected: true,
		},
		{
			name:     "context deadline",
			err:      errors.New("context deadline exceeded"),
			expected: true,
		},
		{
			name:     "constraint violation is not transient",
			err:      errors.New("pq: null value in column \"model_version\" violates not-null constraint"),
			expected: false,
		},
		{
			name:     "validation failure is not transient",
			err:      errors.New("invalid audit record: transaction_id is required"),
			expected: false,
		},
		{
			name:     "empty error message",
			err:      errors.New(""),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRecoverableError(tt.err)
			if result != tt.expected {
				t.Errorf("IsRecoverableError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestIsRecoverableErrorWrapped(t *testing.T) {
	// The marker may sit inside a wrapped chain; classification works
	// off the rendered message.
	err := fmt.Errorf("failed to insert audit record: %w",
		errors.New("dial tcp: connection refused"))
	if !IsRecoverableError(err) {
		t.Error("IsRecoverableError() should see through wrapped errors")
	}
}
