package entity

import (
	"time"

	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
)

// Application is one permit request. Status transitions only through the
// lifecycle state machine; no other component writes it directly.
type Application struct {
	ID string

	ApplicantRef string

	Status        lifecycle.Status
	PaymentMethod lifecycle.PaymentMethod

	AmountCents int64
	Currency    string

	PaymentReferenceID *string
	CallbackHash       string

	// Set exactly once when a cash-voucher payment attempt is created,
	// immutable thereafter. Nil for card payments.
	VoucherExpiresAt *time.Time

	RenewedFromID *string

	DocumentRefs []string

	CreatedAt       time.Time
	StatusUpdatedAt time.Time
}

// Snapshot projects the fields the state machine decides on.
func (a *Application) Snapshot() lifecycle.Snapshot {
	return lifecycle.Snapshot{
		Status:           a.Status,
		PaymentMethod:    a.PaymentMethod,
		AmountCents:      a.AmountCents,
		VoucherExpiresAt: a.VoucherExpiresAt,
	}
}

// VoucherExpired reports whether the voucher's own expiry has passed. The
// expiry is authoritative for the cash-voucher branch, independent of what
// the gateway reports.
func (a *Application) VoucherExpired(now time.Time) bool {
	return a.PaymentMethod == lifecycle.MethodCashVoucher &&
		a.VoucherExpiresAt != nil &&
		now.After(*a.VoucherExpiresAt)
}
