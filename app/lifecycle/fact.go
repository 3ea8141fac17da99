package lifecycle

import "time"

// PaymentMethod distinguishes instant card capture from delayed cash-voucher
// settlement. Voucher-specific rules key off the method, never off the status.
type PaymentMethod int32

const (
	MethodUnspecified PaymentMethod = 0
	MethodCard        PaymentMethod = 1
	MethodCashVoucher PaymentMethod = 2
)

func (m PaymentMethod) String() string {
	switch m {
	case MethodCard:
		return "card"
	case MethodCashVoucher:
		return "cash_voucher"
	default:
		return "unspecified"
	}
}

// GatewayStatus is the payment gateway's status vocabulary, as translated by
// the gateway client adapter.
type GatewayStatus string

const (
	GatewayPending        GatewayStatus = "pending"
	GatewayRequiresAction GatewayStatus = "requires_action"
	GatewaySucceeded      GatewayStatus = "succeeded"
	GatewayCanceled       GatewayStatus = "canceled"
	GatewayFailed         GatewayStatus = "failed"
)

// Source records which producer observed a fact.
type Source string

const (
	SourceWebhook        Source = "webhook"
	SourceReconciliation Source = "reconciliation"
	SourceQueue          Source = "queue"
	SourceManual         Source = "manual"
)

// FactType enumerates the kinds of observations fed into the state machine.
type FactType string

const (
	FactGatewayStatus  FactType = "gateway_status"
	FactVoucherExpired FactType = "voucher_expired"
	FactQueueSucceeded FactType = "queue_succeeded"
	FactQueueFailed    FactType = "queue_failed_permanent"
	FactManualCancel   FactType = "manual_cancel"
	FactPermitExpired  FactType = "permit_expired"
)

// Fact is one observed event: a webhook payload, a reconciliation finding, or
// a synthesized expiry. Facts carry no identity; duplicate delivery is handled
// by the transition rules, not by deduplication.
type Fact struct {
	Type          FactType
	GatewayStatus GatewayStatus
	AmountCents   int64
	FailureReason string
	ObservedAt    time.Time
	Source        Source
}

// Snapshot is the slice of an application the machine needs to decide.
type Snapshot struct {
	Status           Status
	PaymentMethod    PaymentMethod
	AmountCents      int64
	VoucherExpiresAt *time.Time
}
