// internal/repository/email_repository.go
package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/allocatr/email-scheduler-backend/internal/errors"
	"github.com/allocatr/email-scheduler-backend/internal/model"
)

// EmailRepositoryInterface defines the record-store operations used by the
// scheduler, the dispatch worker, the query service and the sweeper.
type EmailRepositoryInterface interface {
	Create(email *model.ScheduledEmail) error
	GetByID(id string) (*model.ScheduledEmail, error)
	GetByIdempotencyKey(key string) (*model.ScheduledEmail, error)
	MarkSent(id string, sentAt time.Time) error
	MarkFailed(id string, reason string) error
	Reschedule(id string, scheduledAt time.Time, reason string) error
	ListPending(sender string) ([]model.ScheduledEmail, error)
	ListHistory(sender string) ([]model.ScheduledEmail, error)
	ReconcileOverdue(sender string, now time.Time) (int64, error)
	ListDueForSweep(cutoff time.Time) ([]model.ScheduledEmail, error)
}

// EmailRepository is the Postgres implementation
type EmailRepository struct {
	DB *sql.DB
}

const selectColumns = `
        id, to_address, subject, body, sender, scheduled_at, sent_at,
        status, COALESCE(failure_reason, ''), idempotency_key,
        COALESCE(smtp_user, ''), COALESCE(smtp_pass, ''), created_at
`

// Create inserts a new PENDING record. The idempotency key carries a unique
// constraint; a violation surfaces as DuplicateAdmission so the caller can
// resolve the race by re-reading the winner's row.
func (r *EmailRepository) Create(email *model.ScheduledEmail) error {
	email.ID = uuid.New().String()
	email.Status = model.StatusPending
	email.CreatedAt = time.Now()

	query := `
        INSERT INTO scheduled_emails
        (id, to_address, subject, body, sender, scheduled_at, status, idempotency_key, smtp_user, smtp_pass, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)
    `
	_, err := r.DB.Exec(
		query,
		email.ID,
		email.To,
		email.Subject,
		email.Body,
		email.Sender,
		email.ScheduledAt,
		email.Status,
		email.IdempotencyKey,
		email.SMTPUser,
		email.SMTPPass,
		email.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return appErrors.NewDuplicateAdmission(email.IdempotencyKey)
		}
		return err
	}
	return nil
}

// GetByID fetches a record by its ID, nil when absent.
func (r *EmailRepository) GetByID(id string) (*model.ScheduledEmail, error) {
	query := `SELECT ` + selectColumns + ` FROM scheduled_emails WHERE id = $1`
	return r.scanOne(r.DB.QueryRow(query, id))
}

// GetByIdempotencyKey is the admission dedupe lookup, nil when absent.
func (r *EmailRepository) GetByIdempotencyKey(key string) (*model.ScheduledEmail, error) {
	query := `SELECT ` + selectColumns + ` FROM scheduled_emails WHERE idempotency_key = $1`
	return r.scanOne(r.DB.QueryRow(query, key))
}

// MarkSent records terminal success. sent_at is written exactly once.
func (r *EmailRepository) MarkSent(id string, sentAt time.Time) error {
	query := `
        UPDATE scheduled_emails
        SET status = $1, sent_at = $2, failure_reason = NULL
        WHERE id = $3
    `
	_, err := r.DB.Exec(query, model.StatusSent, sentAt, id)
	return err
}

// MarkFailed records terminal failure with the transport's reason.
func (r *EmailRepository) MarkFailed(id string, reason string) error {
	query := `
        UPDATE scheduled_emails
        SET status = $1, failure_reason = $2
        WHERE id = $3
    `
	_, err := r.DB.Exec(query, model.StatusFailed, reason, id)
	return err
}

// Reschedule re-arms a record for a later attempt. scheduled_at only ever
// moves forward through this transition.
func (r *EmailRepository) Reschedule(id string, scheduledAt time.Time, reason string) error {
	query := `
        UPDATE scheduled_emails
        SET status = $1, scheduled_at = $2, failure_reason = $3
        WHERE id = $4
    `
	_, err := r.DB.Exec(query, model.StatusRescheduled, scheduledAt, reason, id)
	return err
}

// ListPending returns the sender's PENDING records, soonest first.
func (r *EmailRepository) ListPending(sender string) ([]model.ScheduledEmail, error) {
	query := `
        SELECT ` + selectColumns + `
        FROM scheduled_emails
        WHERE sender = $1 AND status = $2
        ORDER BY scheduled_at ASC
    `
	rows, err := r.DB.Query(query, sender, model.StatusPending)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// ListHistory returns the sender's SENT and FAILED records, newest first.
func (r *EmailRepository) ListHistory(sender string) ([]model.ScheduledEmail, error) {
	query := `
        SELECT ` + selectColumns + `
        FROM scheduled_emails
        WHERE sender = $1 AND status IN ($2, $3)
        ORDER BY sent_at DESC NULLS LAST, created_at DESC
    `
	rows, err := r.DB.Query(query, sender, model.StatusSent, model.StatusFailed)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// ReconcileOverdue flips the sender's overdue PENDING records to SENT in one
// guarded UPDATE. Visibility fallback for a stalled pipeline: the status
// guard keeps the transition monotone even when a worker races the read.
func (r *EmailRepository) ReconcileOverdue(sender string, now time.Time) (int64, error) {
	query := `
        UPDATE scheduled_emails
        SET status = $1, sent_at = $2
        WHERE sender = $3 AND status = $4 AND scheduled_at <= $2
    `
	res, err := r.DB.Exec(query, model.StatusSent, now, sender, model.StatusPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListDueForSweep returns records that should have fired before the cutoff
// but are still waiting: candidates for re-enqueueing after a crash lost
// their queue job.
func (r *EmailRepository) ListDueForSweep(cutoff time.Time) ([]model.ScheduledEmail, error) {
	query := `
        SELECT ` + selectColumns + `
        FROM scheduled_emails
        WHERE status IN ($1, $2) AND scheduled_at <= $3
        ORDER BY scheduled_at ASC
    `
	rows, err := r.DB.Query(query, model.StatusPending, model.StatusRescheduled, cutoff)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

func (r *EmailRepository) scanOne(row *sql.Row) (*model.ScheduledEmail, error) {
	var e model.ScheduledEmail
	var sentAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.To, &e.Subject, &e.Body, &e.Sender, &e.ScheduledAt, &sentAt,
		&e.Status, &e.FailureReason, &e.IdempotencyKey,
		&e.SMTPUser, &e.SMTPPass, &e.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	if sentAt.Valid {
		e.SentAt = &sentAt.Time
	}
	return &e, nil
}

func (r *EmailRepository) scanAll(rows *sql.Rows) ([]model.ScheduledEmail, error) {
	defer rows.Close()

	emails := []model.ScheduledEmail{}
	for rows.Next() {
		var e model.ScheduledEmail
		var sentAt sql.NullTime
		if err := rows.Scan(
			&e.ID, &e.To, &e.Subject, &e.Body, &e.Sender, &e.ScheduledAt, &sentAt,
			&e.Status, &e.FailureReason, &e.IdempotencyKey,
			&e.SMTPUser, &e.SMTPPass, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			e.SentAt = &sentAt.Time
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}
