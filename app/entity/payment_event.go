package entity

import (
	"time"

	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
)

// PaymentEvent is one row of the append-only audit trail. A row is written
// for every observed fact, including duplicates and no-ops, so the history is
// replayable. Rows are never updated or deleted.
type PaymentEvent struct {
	ID uint64

	ApplicationID string
	EventID       string

	EventType     string
	GatewayStatus string
	AmountCents   int64

	OldStatus *lifecycle.Status
	NewStatus lifecycle.Status

	Source       lifecycle.Source
	RejectReason *string
	PayloadJSON  *string

	ObservedAt time.Time
	CreatedAt  time.Time
}
