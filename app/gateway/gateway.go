package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
)

var ErrPaymentNotFound = errors.New("payment not found at gateway")

// PaymentStatus is the gateway's current view of one payment attempt. The
// gateway is authoritative for payment truth; the ledger only records it.
type PaymentStatus struct {
	Status        lifecycle.GatewayStatus
	AmountCents   int64
	SettledAt     *time.Time
	FailureReason string
}

// WebhookEvent is a verified, parsed gateway webhook.
type WebhookEvent struct {
	EventID       string
	EventType     string
	ReferenceID   string
	Status        lifecycle.GatewayStatus
	AmountCents   int64
	FailureReason string
}

// Client is the thin adapter over the external payment gateway. Errors are
// per-call; a batch caller catches each one and moves on.
type Client interface {
	GetPaymentStatus(ctx context.Context, referenceID string) (*PaymentStatus, error)
	VerifyAndParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}
