package lifecycle

import (
	"testing"
	"time"
)

func snap(status Status) Snapshot {
	return Snapshot{Status: status, PaymentMethod: MethodCard, AmountCents: 5000}
}

func voucherSnap(status Status) Snapshot {
	expires := time.Now().Add(-time.Hour)
	return Snapshot{Status: status, PaymentMethod: MethodCashVoucher, AmountCents: 5000, VoucherExpiresAt: &expires}
}

func gatewayFact(status GatewayStatus, amountCents int64) Fact {
	return Fact{
		Type:          FactGatewayStatus,
		GatewayStatus: status,
		AmountCents:   amountCents,
		ObservedAt:    time.Now(),
		Source:        SourceWebhook,
	}
}

func hasEffect(d Decision, effectType EffectType) bool {
	for _, e := range d.Effects {
		if e.Type == effectType {
			return true
		}
	}
	return false
}

func TestGatewaySucceededFromUnsettled(t *testing.T) {
	for _, status := range []Status{StatusAwaitingPayment, StatusAwaitingOxxoPayment, StatusPaymentProcessing} {
		t.Run(status.String(), func(t *testing.T) {
			d := Transition(snap(status), gatewayFact(GatewaySucceeded, 5000))
			if !d.Applied || d.Noop {
				t.Fatalf("expected applied transition, got %+v", d)
			}
			if d.NewStatus != StatusPaymentReceived {
				t.Fatalf("expected payment_received, got %s", d.NewStatus)
			}
			if !hasEffect(d, EffectAdmitToQueue) {
				t.Fatalf("expected admit_to_queue effect, got %+v", d.Effects)
			}
		})
	}
}

func TestGatewaySucceededIsIdempotentPastConfirmation(t *testing.T) {
	for _, status := range []Status{StatusPaymentReceived, StatusGeneratingPermit, StatusPermitReady, StatusCompleted} {
		t.Run(status.String(), func(t *testing.T) {
			d := Transition(snap(status), gatewayFact(GatewaySucceeded, 5000))
			if !d.Applied || !d.Noop {
				t.Fatalf("expected accepted noop, got %+v", d)
			}
			if d.NewStatus != status {
				t.Fatalf("status must not move: got %s", d.NewStatus)
			}
			if len(d.Effects) != 0 {
				t.Fatalf("duplicate success must carry no effects, got %+v", d.Effects)
			}
		})
	}
}

func TestGatewaySucceededAmountMismatch(t *testing.T) {
	d := Transition(snap(StatusAwaitingPayment), gatewayFact(GatewaySucceeded, 4999))
	if d.Applied {
		t.Fatalf("mismatched amount must not apply, got %+v", d)
	}
	if d.NewStatus != StatusAwaitingPayment {
		t.Fatalf("status must stay frozen, got %s", d.NewStatus)
	}
	if !hasEffect(d, EffectAlert) {
		t.Fatalf("expected alert effect, got %+v", d.Effects)
	}
	if d.Effects[0].Severity != SeverityHigh {
		t.Fatalf("expected high severity, got %s", d.Effects[0].Severity)
	}
}

func TestGatewaySucceededForSettledFailure(t *testing.T) {
	d := Transition(snap(StatusPaymentExpired), gatewayFact(GatewaySucceeded, 5000))
	if d.Applied {
		t.Fatalf("late success on settled failure must be rejected, got %+v", d)
	}
	if !hasEffect(d, EffectAlert) {
		t.Fatalf("expected alert for money against failed application, got %+v", d.Effects)
	}
}

func TestGatewayFailureFromUnsettled(t *testing.T) {
	fact := gatewayFact(GatewayFailed, 5000)
	fact.FailureReason = "card_declined"

	d := Transition(snap(StatusPaymentProcessing), fact)
	if !d.Applied || d.Noop {
		t.Fatalf("expected applied transition, got %+v", d)
	}
	if d.NewStatus != StatusPaymentFailed {
		t.Fatalf("expected payment_failed, got %s", d.NewStatus)
	}
	if !hasEffect(d, EffectNotifyFailure) {
		t.Fatalf("expected notify_failure effect, got %+v", d.Effects)
	}
}

func TestStaleFailureAfterConfirmation(t *testing.T) {
	for _, gw := range []GatewayStatus{GatewayCanceled, GatewayFailed} {
		t.Run(string(gw), func(t *testing.T) {
			d := Transition(snap(StatusGeneratingPermit), gatewayFact(gw, 5000))
			if d.Applied {
				t.Fatalf("confirmed payment must not be rolled back, got %+v", d)
			}
			if d.NewStatus != StatusGeneratingPermit {
				t.Fatalf("status must not move, got %s", d.NewStatus)
			}
		})
	}
}

func TestDuplicateFailureIsNoop(t *testing.T) {
	d := Transition(snap(StatusPaymentFailed), gatewayFact(GatewayFailed, 5000))
	if !d.Applied || !d.Noop {
		t.Fatalf("expected accepted noop, got %+v", d)
	}
}

func TestRequiresActionMovesToProcessing(t *testing.T) {
	d := Transition(snap(StatusAwaitingPayment), gatewayFact(GatewayRequiresAction, 5000))
	if !d.Applied || d.NewStatus != StatusPaymentProcessing {
		t.Fatalf("expected payment_processing, got %+v", d)
	}

	d = Transition(snap(StatusPaymentProcessing), gatewayFact(GatewayRequiresAction, 5000))
	if !d.Noop {
		t.Fatalf("repeated requires_action must be a noop, got %+v", d)
	}
}

func TestPendingIsAlwaysNoop(t *testing.T) {
	for _, status := range []Status{StatusAwaitingPayment, StatusAwaitingOxxoPayment, StatusPaymentProcessing, StatusPaymentReceived} {
		d := Transition(snap(status), gatewayFact(GatewayPending, 5000))
		if !d.Applied || !d.Noop {
			t.Fatalf("pending from %s must be a noop, got %+v", status, d)
		}
	}
}

func TestVoucherExpiry(t *testing.T) {
	d := Transition(voucherSnap(StatusAwaitingOxxoPayment), Fact{Type: FactVoucherExpired, Source: SourceReconciliation})
	if !d.Applied || d.NewStatus != StatusPaymentExpired {
		t.Fatalf("expected payment_expired, got %+v", d)
	}
	if !hasEffect(d, EffectAlert) {
		t.Fatalf("expected medium alert, got %+v", d.Effects)
	}
	if d.Effects[0].Severity != SeverityMedium {
		t.Fatalf("expected medium severity, got %s", d.Effects[0].Severity)
	}
}

func TestVoucherExpiryNeverOverridesConfirmedPayment(t *testing.T) {
	d := Transition(voucherSnap(StatusPaymentReceived), Fact{Type: FactVoucherExpired})
	if d.Applied {
		t.Fatalf("expiry after confirmation must be rejected, got %+v", d)
	}
}

func TestVoucherExpiryRejectedForCardApplications(t *testing.T) {
	d := Transition(snap(StatusAwaitingPayment), Fact{Type: FactVoucherExpired})
	if d.Applied {
		t.Fatalf("card application cannot expire a voucher, got %+v", d)
	}
}

func TestQueueSucceeded(t *testing.T) {
	d := Transition(snap(StatusGeneratingPermit), Fact{Type: FactQueueSucceeded, Source: SourceQueue})
	if !d.Applied || d.NewStatus != StatusPermitReady {
		t.Fatalf("expected permit_ready, got %+v", d)
	}
	if !hasEffect(d, EffectNotifyPermitReady) {
		t.Fatalf("expected notify_permit_ready effect, got %+v", d.Effects)
	}

	d = Transition(snap(StatusPermitReady), Fact{Type: FactQueueSucceeded})
	if !d.Noop {
		t.Fatalf("duplicate queue success must be a noop, got %+v", d)
	}
}

func TestQueueFailedPermanent(t *testing.T) {
	d := Transition(snap(StatusGeneratingPermit), Fact{Type: FactQueueFailed, FailureReason: "renderer crash"})
	if !d.Applied || d.NewStatus != StatusErrorGenerating {
		t.Fatalf("expected error_generating_permit, got %+v", d)
	}
	if !hasEffect(d, EffectAlert) {
		t.Fatalf("expected high alert, got %+v", d.Effects)
	}
}

func TestManualCancel(t *testing.T) {
	d := Transition(snap(StatusAwaitingPayment), Fact{Type: FactManualCancel, Source: SourceManual})
	if !d.Applied || d.NewStatus != StatusCancelled {
		t.Fatalf("expected cancelled, got %+v", d)
	}

	d = Transition(snap(StatusPaymentReceived), Fact{Type: FactManualCancel, Source: SourceManual})
	if d.Applied {
		t.Fatalf("cancel after payment confirmation must be rejected, got %+v", d)
	}

	d = Transition(snap(StatusCancelled), Fact{Type: FactManualCancel, Source: SourceManual})
	if !d.Noop {
		t.Fatalf("repeated cancel must be a noop, got %+v", d)
	}
}

func TestPermitExpired(t *testing.T) {
	for _, status := range []Status{StatusPermitReady, StatusCompleted} {
		d := Transition(snap(status), Fact{Type: FactPermitExpired, Source: SourceManual})
		if !d.Applied || d.NewStatus != StatusExpired {
			t.Fatalf("expected expired from %s, got %+v", status, d)
		}
	}

	d := Transition(snap(StatusGeneratingPermit), Fact{Type: FactPermitExpired})
	if d.Applied {
		t.Fatalf("permit expiry before permit_ready must be rejected, got %+v", d)
	}
}

func TestUnknownFactType(t *testing.T) {
	d := Transition(snap(StatusAwaitingPayment), Fact{Type: FactType("bogus")})
	if d.Applied {
		t.Fatalf("unknown fact type must be rejected, got %+v", d)
	}
}

func TestRegresses(t *testing.T) {
	cases := []struct {
		current, next Status
		want          bool
	}{
		{StatusPaymentReceived, StatusAwaitingPayment, true},
		{StatusPaymentReceived, StatusPaymentFailed, true},
		{StatusGeneratingPermit, StatusPermitReady, false},
		{StatusAwaitingPayment, StatusPaymentProcessing, false},
		{StatusPermitReady, StatusCompleted, false},
		{StatusCompleted, StatusPermitReady, true},
	}
	for _, tc := range cases {
		if got := Regresses(tc.current, tc.next); got != tc.want {
			t.Fatalf("Regresses(%s, %s) = %v, want %v", tc.current, tc.next, got, tc.want)
		}
	}
}

func TestStatusPredicatesAgree(t *testing.T) {
	all := []Status{
		StatusAwaitingPayment, StatusAwaitingOxxoPayment, StatusPaymentProcessing,
		StatusPaymentReceived, StatusGeneratingPermit, StatusPermitReady, StatusCompleted,
		StatusPaymentFailed, StatusPaymentExpired, StatusErrorGenerating,
		StatusCancelled, StatusExpired,
	}
	for _, s := range all {
		if !IsValidStatus(s) {
			t.Fatalf("%d should be a valid status", s)
		}
		if s.Unsettled() && s.Terminal() {
			t.Fatalf("%s cannot be both unsettled and terminal", s)
		}
		if s.Unsettled() && s.PaymentConfirmed() {
			t.Fatalf("%s cannot be both unsettled and payment-confirmed", s)
		}
	}
	if IsValidStatus(StatusUnspecified) {
		t.Fatal("unspecified must not be a valid status")
	}
}
