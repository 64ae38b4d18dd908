// internal/model/scheduled_email.go
package model

import "time"

// Status values for a scheduled email. A record is created PENDING and is
// never deleted; RESCHEDULED re-enters the pipeline at a later scheduled_at.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusSent        Status = "SENT"
	StatusFailed      Status = "FAILED"
	StatusRescheduled Status = "RESCHEDULED"
)

// ScheduledEmail is one tracked delivery: one recipient, one campaign item.
type ScheduledEmail struct {
	ID             string     `db:"id" json:"id"`
	To             string     `db:"to_address" json:"to"`
	Subject        string     `db:"subject" json:"subject"`
	Body           string     `db:"body" json:"body"`
	Sender         string     `db:"sender" json:"sender"`
	ScheduledAt    time.Time  `db:"scheduled_at" json:"scheduled_at"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	Status         Status     `db:"status" json:"status"`
	FailureReason  string     `db:"failure_reason" json:"failure_reason,omitempty"`
	IdempotencyKey string     `db:"idempotency_key" json:"idempotency_key"`
	SMTPUser       string     `db:"smtp_user" json:"smtp_user,omitempty"`
	SMTPPass       string     `db:"smtp_pass" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
