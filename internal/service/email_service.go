// internal/service/email_service.go
package service

import (
	"errors"
	"log"
	"time"

	appErrors "github.com/allocatr/email-scheduler-backend/internal/errors"
	"github.com/allocatr/email-scheduler-backend/internal/model"
	"github.com/allocatr/email-scheduler-backend/internal/queue"
	"github.com/allocatr/email-scheduler-backend/internal/repository"
)

// EmailService is the admission and read side of the pipeline: it turns a
// schedule request into a persisted PENDING record plus one delayed job, and
// serves the pending/history views.
type EmailService struct {
	Repo  repository.EmailRepositoryInterface
	Queue queue.DelayQueue
}

// ScheduleRequest carries one validated admission.
type ScheduleRequest struct {
	To             string
	Subject        string
	Body           string
	ScheduledAt    time.Time
	Sender         string
	IdempotencyKey string
	SMTPUser       string
	SMTPPass       string
}

// ScheduleEmail admits one delivery. Admission is idempotent: the same
// idempotency key always resolves to the same record and at most one job.
func (s *EmailService) ScheduleEmail(req ScheduleRequest) (*model.ScheduledEmail, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	// Dedupe lookup first so retried calls short-circuit without touching
	// the queue. The unique constraint backstops the race this can lose.
	existing, err := s.Repo.GetByIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	email := &model.ScheduledEmail{
		To:             req.To,
		Subject:        req.Subject,
		Body:           req.Body,
		Sender:         req.Sender,
		ScheduledAt:    req.ScheduledAt,
		IdempotencyKey: req.IdempotencyKey,
		SMTPUser:       req.SMTPUser,
		SMTPPass:       req.SMTPPass,
	}

	if err := s.Repo.Create(email); err != nil {
		var dup *appErrors.DuplicateAdmission
		if errors.As(err, &dup) {
			// Lost the race to an identical admission: the winner's record
			// and job already exist, so return them unchanged.
			winner, ferr := s.Repo.GetByIdempotencyKey(req.IdempotencyKey)
			if ferr == nil && winner != nil {
				return winner, nil
			}
			return nil, err
		}
		return nil, err
	}

	delay := time.Until(email.ScheduledAt)
	if delay < 0 {
		delay = 0
	}

	// The idempotency key doubles as the job ID so queue-level dedupe lines
	// up with the store's constraint.
	if err := s.Queue.Enqueue(email.IdempotencyKey, queue.Job{EmailID: email.ID}, delay); err != nil {
		// Record is persisted but unarmed; the sweep re-enqueues it once it
		// turns overdue. Surface the error so the caller can retry sooner.
		log.Println("⚠️ failed to enqueue dispatch job for", email.ID, ":", err)
		return nil, err
	}

	return email, nil
}

// GetScheduledEmails lists the sender's PENDING records.
func (s *EmailService) GetScheduledEmails(sender string) ([]model.ScheduledEmail, error) {
	return s.Repo.ListPending(sender)
}

// GetSentEmails lists the sender's SENT and FAILED records, newest first.
//
// Before reading it reconciles: PENDING records whose scheduled_at has
// already passed are flipped to SENT with sent_at = now. This is a lossy,
// best-effort visibility fallback for a stalled worker or queue, not a
// transport confirmation.
func (s *EmailService) GetSentEmails(sender string) ([]model.ScheduledEmail, error) {
	if sender != "" {
		flipped, err := s.Repo.ReconcileOverdue(sender, time.Now())
		if err != nil {
			return nil, err
		}
		if flipped > 0 {
			log.Printf("Reconciled %d overdue pending email(s) for sender %s", flipped, sender)
		}
	}
	return s.Repo.ListHistory(sender)
}

func validate(req ScheduleRequest) error {
	switch {
	case req.To == "":
		return appErrors.NewValidationError("to")
	case req.Subject == "":
		return appErrors.NewValidationError("subject")
	case req.Body == "":
		return appErrors.NewValidationError("body")
	case req.ScheduledAt.IsZero():
		return appErrors.NewValidationError("scheduledAt")
	case req.Sender == "":
		return appErrors.NewValidationError("sender")
	case req.IdempotencyKey == "":
		return appErrors.NewValidationError("idempotencyKey")
	}
	return nil
}
