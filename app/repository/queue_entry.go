package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-permits/app/entity"
)

var (
	ErrQueueEntryNotFound = errors.New("queue entry not found")
	ErrQueueEntryExists   = errors.New("queue entry already exists")

	// ErrQueueEntryTerminal means a write targeted an entry whose terminal
	// state is already set. Terminal entries are immutable; callers treat
	// this as a no-op.
	ErrQueueEntryTerminal = errors.New("queue entry already terminal")
)

const queueEntryColumns = `
	id, application_id, enqueued_at, attempt_count, last_attempt_at,
	terminal_state, last_error, created_at, updated_at
`

type QueueEntryRepository struct {
	db DBTX
}

func NewQueueEntryRepository(db DBTX) *QueueEntryRepository {
	return &QueueEntryRepository{db: db}
}

// Create inserts a new entry. The unique key on application_id makes double
// admission a duplicate error the orchestrator turns into a no-op.
func (r *QueueEntryRepository) Create(ctx context.Context, entry *entity.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (
			application_id, enqueued_at, attempt_count, last_attempt_at,
			terminal_state, last_error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.ApplicationID,
		entry.EnqueuedAt,
		entry.AttemptCount,
		entry.LastAttemptAt,
		nullableStringValue(entry.TerminalState),
		nullableStringValue(entry.LastError),
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrQueueEntryExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	return nil
}

func (r *QueueEntryRepository) FindByApplicationID(ctx context.Context, applicationID string) (*entity.QueueEntry, error) {
	query := `SELECT ` + queueEntryColumns + ` FROM queue_entries WHERE application_id = ? LIMIT 1`

	entry := &entity.QueueEntry{}
	if err := scanQueueEntry(r.db.QueryRowContext(ctx, query, applicationID), entry); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return entry, nil
}

// CountAhead returns how many open entries were enqueued before the given
// time, which is this entry's queue position.
func (r *QueueEntryRepository) CountAhead(ctx context.Context, enqueuedAt time.Time) (int32, error) {
	query := `
		SELECT COUNT(*)
		FROM queue_entries
		WHERE terminal_state IS NULL AND enqueued_at < ?
	`

	var count int32
	if err := r.db.QueryRowContext(ctx, query, enqueuedAt).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListStuck returns open entries whose last attempt is older than the cutoff,
// i.e. jobs abandoned by a crashed worker.
func (r *QueueEntryRepository) ListStuck(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.QueueEntry, error) {
	query := `
		SELECT ` + queueEntryColumns + `
		FROM queue_entries
		WHERE terminal_state IS NULL AND last_attempt_at <= ?
		ORDER BY last_attempt_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*entity.QueueEntry, 0)
	for rows.Next() {
		item := &entity.QueueEntry{}
		if err := scanQueueEntry(rows, item); err != nil {
			return nil, err
		}
		entries = append(entries, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkAttempt re-admits an open entry for another try: bumps the attempt
// counter and refreshes the enqueue/attempt times. The terminal guard makes
// the race with ReportOutcome benign.
func (r *QueueEntryRepository) MarkAttempt(ctx context.Context, applicationID string, now time.Time, lastError *string) error {
	query := `
		UPDATE queue_entries
		SET attempt_count = attempt_count + 1,
			enqueued_at = ?,
			last_attempt_at = ?,
			last_error = ?,
			updated_at = ?
		WHERE application_id = ? AND terminal_state IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, now, now, nullableStringValue(lastError), now, applicationID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrQueueEntryTerminal
	}
	return nil
}

// SetTerminal closes an entry. Once terminal_state is set the row is
// immutable; a second terminal write affects zero rows and reports
// ErrQueueEntryTerminal.
func (r *QueueEntryRepository) SetTerminal(ctx context.Context, applicationID, state string, lastError *string, now time.Time) error {
	query := `
		UPDATE queue_entries
		SET terminal_state = ?, last_error = ?, updated_at = ?
		WHERE application_id = ? AND terminal_state IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, state, nullableStringValue(lastError), now, applicationID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrQueueEntryTerminal
	}
	return nil
}

func scanQueueEntry(scan rowScanner, entry *entity.QueueEntry) error {
	var terminalState, lastError sql.NullString

	err := scan.Scan(
		&entry.ID,
		&entry.ApplicationID,
		&entry.EnqueuedAt,
		&entry.AttemptCount,
		&entry.LastAttemptAt,
		&terminalState,
		&lastError,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return err
	}

	entry.TerminalState = stringPtrFromNull(terminalState)
	entry.LastError = stringPtrFromNull(lastError)
	return nil
}
