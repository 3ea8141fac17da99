package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-permits/app/entity"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
)

type PaymentEventRepository struct {
	db DBTX
}

func NewPaymentEventRepository(db DBTX) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

// Append writes one audit row. The table is append-only; there is no update
// or delete path anywhere in the codebase.
func (r *PaymentEventRepository) Append(ctx context.Context, event *entity.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (
			application_id, event_id, event_type, gateway_status, amount_cents,
			old_status, new_status, source, reject_reason, payload_json,
			observed_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var oldStatus interface{}
	if event.OldStatus != nil {
		oldStatus = int32(*event.OldStatus)
	}

	result, err := r.db.ExecContext(ctx, query,
		event.ApplicationID,
		event.EventID,
		event.EventType,
		event.GatewayStatus,
		event.AmountCents,
		oldStatus,
		int32(event.NewStatus),
		string(event.Source),
		nullableStringValue(event.RejectReason),
		nullableStringValue(event.PayloadJSON),
		event.ObservedAt,
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}

// ListByApplication returns the audit trail in insertion order.
func (r *PaymentEventRepository) ListByApplication(ctx context.Context, applicationID string, limit int32) ([]*entity.PaymentEvent, error) {
	query := `
		SELECT id, application_id, event_id, event_type, gateway_status, amount_cents,
			old_status, new_status, source, reject_reason, payload_json,
			observed_at, created_at
		FROM payment_events
		WHERE application_id = ?
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, applicationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*entity.PaymentEvent, 0)
	for rows.Next() {
		item := &entity.PaymentEvent{}
		var oldStatus sql.NullInt32
		var newStatus int32
		var source string
		var rejectReason, payloadJSON sql.NullString

		err := rows.Scan(
			&item.ID,
			&item.ApplicationID,
			&item.EventID,
			&item.EventType,
			&item.GatewayStatus,
			&item.AmountCents,
			&oldStatus,
			&newStatus,
			&source,
			&rejectReason,
			&payloadJSON,
			&item.ObservedAt,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if oldStatus.Valid {
			old := lifecycle.Status(oldStatus.Int32)
			item.OldStatus = &old
		}
		item.NewStatus = lifecycle.Status(newStatus)
		item.Source = lifecycle.Source(source)
		item.RejectReason = stringPtrFromNull(rejectReason)
		item.PayloadJSON = stringPtrFromNull(payloadJSON)

		events = append(events, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
