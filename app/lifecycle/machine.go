package lifecycle

import "fmt"

// Decision is the outcome of feeding one fact through the machine. A rejected
// decision is an ordinary result, not an error: duplicate and out-of-order
// delivery is expected noise and batch callers must keep processing.
type Decision struct {
	Applied      bool
	Noop         bool
	NewStatus    Status
	Effects      []Effect
	RejectReason string
}

func applied(next Status, effects ...Effect) Decision {
	return Decision{Applied: true, NewStatus: next, Effects: effects}
}

func noop(current Status) Decision {
	return Decision{Applied: true, Noop: true, NewStatus: current}
}

func rejected(current Status, reason string, effects ...Effect) Decision {
	return Decision{NewStatus: current, RejectReason: reason, Effects: effects}
}

// Transition computes the next status and effect list for one fact against
// one application snapshot. It is pure: both the webhook path and the
// reconciliation job funnel through it, and concurrent facts are serialized
// later by the conditional status write.
func Transition(snap Snapshot, fact Fact) Decision {
	switch fact.Type {
	case FactGatewayStatus:
		return transitionGateway(snap, fact)
	case FactVoucherExpired:
		return transitionVoucherExpired(snap)
	case FactQueueSucceeded:
		return transitionQueueSucceeded(snap)
	case FactQueueFailed:
		return transitionQueueFailed(snap, fact)
	case FactManualCancel:
		return transitionManualCancel(snap)
	case FactPermitExpired:
		return transitionPermitExpired(snap)
	default:
		return rejected(snap.Status, fmt.Sprintf("unknown fact type %q", fact.Type))
	}
}

func transitionGateway(snap Snapshot, fact Fact) Decision {
	switch fact.GatewayStatus {
	case GatewaySucceeded:
		return transitionGatewaySucceeded(snap, fact)
	case GatewayCanceled, GatewayFailed:
		return transitionGatewayFailed(snap, fact)
	case GatewayRequiresAction:
		if snap.Status == StatusAwaitingPayment {
			return applied(StatusPaymentProcessing)
		}
		return noop(snap.Status)
	case GatewayPending:
		return noop(snap.Status)
	default:
		return rejected(snap.Status, fmt.Sprintf("unknown gateway status %q", fact.GatewayStatus))
	}
}

func transitionGatewaySucceeded(snap Snapshot, fact Fact) Decision {
	// Amount integrity is checked, never inferred. A mismatch freezes the
	// application in place pending manual review.
	if fact.AmountCents > 0 && snap.AmountCents > 0 && fact.AmountCents != snap.AmountCents {
		return rejected(snap.Status,
			fmt.Sprintf("amount mismatch: gateway reports %d, recorded %d", fact.AmountCents, snap.AmountCents),
			alertEffect(SeverityHigh, "gateway amount does not match recorded amount"))
	}

	if snap.Status.Unsettled() {
		return applied(StatusPaymentReceived, Effect{Type: EffectAdmitToQueue})
	}

	// Idempotence by reachability: at or past PaymentReceived the same fact
	// is accepted without effects, which tolerates duplicate webhooks with no
	// dedup table.
	if snap.Status.PaymentConfirmed() {
		return noop(snap.Status)
	}

	// Money confirmed against an application that already failed out. Never
	// auto-resolved; somebody has to look at it.
	return rejected(snap.Status,
		fmt.Sprintf("success fact for application in %s", snap.Status),
		alertEffect(SeverityHigh, "payment succeeded for application in a settled failure state"))
}

func transitionGatewayFailed(snap Snapshot, fact Fact) Decision {
	// One-way rule: confirmed money cannot be retroactively un-confirmed by
	// a stale or out-of-order failure fact.
	if snap.Status.PaymentConfirmed() {
		return rejected(snap.Status, fmt.Sprintf("stale %s fact after payment confirmation", fact.GatewayStatus))
	}
	if snap.Status == StatusPaymentFailed {
		return noop(snap.Status)
	}
	if !snap.Status.Unsettled() {
		return rejected(snap.Status, fmt.Sprintf("%s fact for application in %s", fact.GatewayStatus, snap.Status))
	}
	return applied(StatusPaymentFailed, Effect{Type: EffectNotifyFailure, Reason: fact.FailureReason})
}

func transitionVoucherExpired(snap Snapshot) Decision {
	if snap.PaymentMethod != MethodCashVoucher {
		return rejected(snap.Status, "voucher expiry fact for non-voucher application")
	}
	// Expiry wins over a late "still pending" fact but never over an already
	// applied success.
	if snap.Status.PaymentConfirmed() {
		return rejected(snap.Status, "voucher expiry after payment confirmation")
	}
	if snap.Status == StatusPaymentExpired {
		return noop(snap.Status)
	}
	if !snap.Status.Unsettled() {
		return rejected(snap.Status, fmt.Sprintf("voucher expiry for application in %s", snap.Status))
	}
	return applied(StatusPaymentExpired, alertEffect(SeverityMedium, "cash voucher expired unpaid"))
}

func transitionQueueSucceeded(snap Snapshot) Decision {
	switch snap.Status {
	case StatusGeneratingPermit:
		return applied(StatusPermitReady, Effect{Type: EffectNotifyPermitReady})
	case StatusPermitReady, StatusCompleted:
		return noop(snap.Status)
	default:
		return rejected(snap.Status, fmt.Sprintf("queue success for application in %s", snap.Status))
	}
}

func transitionQueueFailed(snap Snapshot, fact Fact) Decision {
	switch snap.Status {
	case StatusGeneratingPermit:
		return applied(StatusErrorGenerating,
			alertEffect(SeverityHigh, "document generation exhausted retries: "+fact.FailureReason))
	case StatusErrorGenerating:
		return noop(snap.Status)
	default:
		return rejected(snap.Status, fmt.Sprintf("queue failure for application in %s", snap.Status))
	}
}

func transitionManualCancel(snap Snapshot) Decision {
	if snap.Status == StatusCancelled {
		return noop(snap.Status)
	}
	if !snap.Status.Unsettled() {
		return rejected(snap.Status, fmt.Sprintf("cancel for application in %s", snap.Status))
	}
	return applied(StatusCancelled)
}

func transitionPermitExpired(snap Snapshot) Decision {
	switch snap.Status {
	case StatusPermitReady, StatusCompleted:
		return applied(StatusExpired)
	case StatusExpired:
		return noop(snap.Status)
	default:
		return rejected(snap.Status, fmt.Sprintf("permit expiry for application in %s", snap.Status))
	}
}

// Regresses reports whether persisting next after current would move an
// application to a less final state. The repository enforces this with a
// conditional write; callers use it to classify lost races.
func Regresses(current, next Status) bool {
	return next.rank() < current.rank()
}
