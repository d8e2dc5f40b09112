package queue

import "errors"

var (
	// ErrQueueClosed is returned when enqueueing or dequeueing on a
	// queue that was already shut down.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned by the memory backend when its buffer
	// is exhausted. The ingest path reports it upstream rather than
	// blocking the request.
	ErrQueueFull = errors.New("queue is full")

	// ErrItemNotFound is returned when a dead-letter item id does not
	// exist, typically because it was already replayed or purged.
	ErrItemNotFound = errors.New("item not found")

	// ErrMaxRetriesExceeded wraps the last insert error once the worker
	// gives up on a record and parks it in the dead letter queue.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
