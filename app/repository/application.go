package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-permits/app/entity"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
)

var (
	ErrApplicationNotFound      = errors.New("application not found")
	ErrApplicationAlreadyExists = errors.New("application already exists")

	// ErrStatusConflict means the conditional status write lost a race: the
	// expected current status no longer held. The winning write already
	// reflects a valid, no-worse state, so callers discard, never retry.
	ErrStatusConflict = errors.New("application status conflict")
)

const applicationColumns = `
	id, applicant_ref, status, payment_method, amount_cents, currency,
	payment_reference_id, callback_hash, voucher_expires_at, renewed_from_id,
	document_refs, created_at, status_updated_at
`

type ApplicationRepository struct {
	db DBTX
}

func NewApplicationRepository(db DBTX) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

func (r *ApplicationRepository) Create(ctx context.Context, app *entity.Application) error {
	refsJSON, err := serializeRefs(app.DocumentRefs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO applications (
			id, applicant_ref, status, payment_method, amount_cents, currency,
			payment_reference_id, callback_hash, voucher_expires_at, renewed_from_id,
			document_refs, created_at, status_updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		app.ID,
		app.ApplicantRef,
		int32(app.Status),
		int32(app.PaymentMethod),
		app.AmountCents,
		app.Currency,
		nullableStringValue(app.PaymentReferenceID),
		app.CallbackHash,
		nullableTimeValue(app.VoucherExpiresAt),
		nullableStringValue(app.RenewedFromID),
		refsJSON,
		app.CreatedAt,
		app.StatusUpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrApplicationAlreadyExists
		}
		return err
	}
	return nil
}

func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*entity.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = ?`

	app := &entity.Application{}
	if err := scanApplication(r.db.QueryRowContext(ctx, query, id), app); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return app, nil
}

func (r *ApplicationRepository) FindByCallbackHash(ctx context.Context, callbackHash string) (*entity.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE callback_hash = ? LIMIT 1`

	app := &entity.Application{}
	if err := scanApplication(r.db.QueryRowContext(ctx, query, callbackHash), app); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return app, nil
}

func (r *ApplicationRepository) FindByPaymentReference(ctx context.Context, referenceID string) (*entity.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE payment_reference_id = ? LIMIT 1`

	app := &entity.Application{}
	if err := scanApplication(r.db.QueryRowContext(ctx, query, referenceID), app); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return app, nil
}

// FindUnsettled lists applications whose payment truth can still change:
// awaiting payment (either flavor) or processing. The reconciliation job owns
// this read path.
func (r *ApplicationRepository) FindUnsettled(ctx context.Context, limit int32) ([]*entity.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE status IN (?, ?, ?)
		ORDER BY status_updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		int32(lifecycle.StatusAwaitingPayment),
		int32(lifecycle.StatusAwaitingOxxoPayment),
		int32(lifecycle.StatusPaymentProcessing),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apps := make([]*entity.Application, 0)
	for rows.Next() {
		item := &entity.Application{}
		if err := scanApplication(rows, item); err != nil {
			return nil, err
		}
		apps = append(apps, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return apps, nil
}

// UpdateStatus is the conditional write that serializes concurrent facts: the
// status only moves when the caller's expectation still holds. A lost race
// returns ErrStatusConflict.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, expected, next lifecycle.Status, now time.Time) error {
	query := `
		UPDATE applications
		SET status = ?, status_updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, int32(next), now, id, int32(expected))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// SetDocumentRefs records produced documents. Populated only on reaching
// permit_ready.
func (r *ApplicationRepository) SetDocumentRefs(ctx context.Context, id string, refs []string) error {
	refsJSON, err := serializeRefs(refs)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET document_refs = ? WHERE id = ?`, refsJSON, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(scan rowScanner, app *entity.Application) error {
	var status, method int32
	var paymentReferenceID sql.NullString
	var voucherExpiresAt sql.NullTime
	var renewedFromID sql.NullString
	var refsJSON string

	err := scan.Scan(
		&app.ID,
		&app.ApplicantRef,
		&status,
		&method,
		&app.AmountCents,
		&app.Currency,
		&paymentReferenceID,
		&app.CallbackHash,
		&voucherExpiresAt,
		&renewedFromID,
		&refsJSON,
		&app.CreatedAt,
		&app.StatusUpdatedAt,
	)
	if err != nil {
		return err
	}

	app.Status = lifecycle.Status(status)
	app.PaymentMethod = lifecycle.PaymentMethod(method)
	app.PaymentReferenceID = stringPtrFromNull(paymentReferenceID)
	app.VoucherExpiresAt = timePtrFromNull(voucherExpiresAt)
	app.RenewedFromID = stringPtrFromNull(renewedFromID)

	refs, err := parseRefs(refsJSON)
	if err != nil {
		return err
	}
	app.DocumentRefs = refs

	return nil
}
