package lifecycle

// Status is the single source of truth for where an application is in its
// lifecycle. Values are stable wire/database codes; settled branches live in
// the 2x range so new happy-path states can be inserted without renumbering.
type Status int32

const (
	StatusUnspecified         Status = 0
	StatusAwaitingPayment     Status = 1
	StatusAwaitingOxxoPayment Status = 2
	StatusPaymentProcessing   Status = 3
	StatusPaymentReceived     Status = 10
	StatusGeneratingPermit    Status = 11
	StatusPermitReady         Status = 12
	StatusCompleted           Status = 13
	StatusPaymentFailed       Status = 20
	StatusPaymentExpired      Status = 21
	StatusErrorGenerating     Status = 22
	StatusCancelled           Status = 23
	StatusExpired             Status = 24
)

func (s Status) String() string {
	switch s {
	case StatusAwaitingPayment:
		return "awaiting_payment"
	case StatusAwaitingOxxoPayment:
		return "awaiting_oxxo_payment"
	case StatusPaymentProcessing:
		return "payment_processing"
	case StatusPaymentReceived:
		return "payment_received"
	case StatusGeneratingPermit:
		return "generating_permit"
	case StatusPermitReady:
		return "permit_ready"
	case StatusCompleted:
		return "completed"
	case StatusPaymentFailed:
		return "payment_failed"
	case StatusPaymentExpired:
		return "payment_expired"
	case StatusErrorGenerating:
		return "error_generating_permit"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unspecified"
	}
}

// Unsettled reports whether payment truth for this status can still change,
// i.e. the reconciliation job must keep watching the gateway.
func (s Status) Unsettled() bool {
	switch s {
	case StatusAwaitingPayment, StatusAwaitingOxxoPayment, StatusPaymentProcessing:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further automatic transition exists.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPaymentFailed, StatusPaymentExpired,
		StatusErrorGenerating, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// PaymentConfirmed reports whether money has been confirmed at or before this
// status. Once true, no failure or expiry fact may roll the application back.
func (s Status) PaymentConfirmed() bool {
	switch s {
	case StatusPaymentReceived, StatusGeneratingPermit, StatusPermitReady,
		StatusCompleted, StatusErrorGenerating, StatusExpired:
		return true
	default:
		return false
	}
}

// rank orders the happy path so persisted statuses never regress. Side
// branches inherit the rank of the state they branch from.
func (s Status) rank() int {
	switch s {
	case StatusAwaitingPayment, StatusAwaitingOxxoPayment:
		return 1
	case StatusPaymentProcessing:
		return 2
	case StatusPaymentFailed, StatusPaymentExpired, StatusCancelled:
		return 3
	case StatusPaymentReceived:
		return 4
	case StatusGeneratingPermit:
		return 5
	case StatusErrorGenerating:
		return 6
	case StatusPermitReady:
		return 7
	case StatusCompleted, StatusExpired:
		return 8
	default:
		return 0
	}
}

func IsValidStatus(s Status) bool {
	return s.String() != "unspecified"
}
