package entity

import "time"

const (
	QueueTerminalSucceeded       = "succeeded"
	QueueTerminalFailedPermanent = "failed_permanent"
)

// QueueEntry is one admitted document-generation job. It is owned by the
// queue orchestrator until TerminalState is set, after which the row is
// immutable and further writes are no-ops.
type QueueEntry struct {
	ID uint64

	ApplicationID string

	EnqueuedAt    time.Time
	AttemptCount  int32
	LastAttemptAt time.Time

	TerminalState *string
	LastError     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *QueueEntry) Terminal() bool {
	return e.TerminalState != nil
}
