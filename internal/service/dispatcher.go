// internal/service/dispatcher.go
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	appErrors "github.com/allocatr/email-scheduler-backend/internal/errors"
	"github.com/allocatr/email-scheduler-backend/internal/mailer"
	"github.com/allocatr/email-scheduler-backend/internal/model"
	"github.com/allocatr/email-scheduler-backend/internal/queue"
	"github.com/allocatr/email-scheduler-backend/internal/repository"
)

// RateLimiter is the per-sender hourly budget consulted by every dispatch
// attempt.
type RateLimiter interface {
	Allow(ctx context.Context, sender string) (bool, error)
	Record(ctx context.Context, sender string) error
	SecondsUntilNextWindow() int
}

// SenderResolver picks the transport for one record (per-record override or
// the process default).
type SenderResolver interface {
	Resolve(email *model.ScheduledEmail) mailer.Sender
}

// Dispatcher runs the per-job state machine: rate-check, send, finalize or
// reschedule. A record is only in flight for the duration of one Handle
// call; every durable state lives in the record store.
type Dispatcher struct {
	Repo        repository.EmailRepositoryInterface
	Limiter     RateLimiter
	Resolver    SenderResolver
	SendTimeout time.Duration

	now func() time.Time
}

// Handle processes one claimed delivery end to end. It always resolves the
// claim: Ack on success or drop, MoveToDelayed on reschedule, Fail on
// terminal transport errors so the queue's own bounded retry applies.
func (w *Dispatcher) Handle(d queue.Delivery) {
	job := d.Job()
	log.Println("📩 Processing dispatch job for email:", job.EmailID)

	email, err := w.Repo.GetByID(job.EmailID)
	if err != nil {
		log.Println("⚠️ Failed to load email", job.EmailID, ":", err)
		d.Fail()
		return
	}
	if email == nil {
		// Admission persists before enqueueing, so a missing record means
		// store/queue drift. Drop the job; there is nothing to update.
		log.Println("⚠️ Dropping job:", appErrors.NewEmailNotFound(job.EmailID))
		d.Ack()
		return
	}

	// At-least-once re-entry guard: a redelivered job for an already
	// finalized record is a no-op.
	if email.Status == model.StatusSent || email.Status == model.StatusFailed {
		d.Ack()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.sendTimeout())
	defer cancel()

	allowed, err := w.Limiter.Allow(ctx, email.Sender)
	if err != nil {
		log.Println("⚠️ Rate limit check failed for", email.Sender, ":", err)
		d.Fail()
		return
	}
	if !allowed {
		delay := time.Duration(w.Limiter.SecondsUntilNextWindow()) * time.Second
		log.Printf("Rate limit exceeded for sender %s, rescheduling in %s", email.Sender, delay)
		w.reschedule(d, email, delay, fmt.Sprintf("Rate limit exceeded. Retrying at %s",
			w.clock().Add(delay).Format(time.RFC3339)))
		return
	}

	sender := w.Resolver.Resolve(email)
	messageID, err := sender.Send(ctx, email.To, email.Subject, email.Body)
	if err == nil {
		sentAt := w.clock()
		if err := w.Repo.MarkSent(email.ID, sentAt); err != nil {
			log.Println("⚠️ Send succeeded but status update failed for", email.ID, ":", err)
			d.Fail()
			return
		}
		// Increment only after success so a failed send never burns budget.
		if err := w.Limiter.Record(ctx, email.Sender); err != nil {
			log.Println("⚠️ Failed to record rate limit usage for", email.Sender, ":", err)
		}
		log.Println("✅ Message sent:", messageID)
		d.Ack()
		return
	}

	if mailer.IsTransient(err) {
		// Recoverable auth/throttle class: fixed one-hour backoff regardless
		// of the wall-clock boundary, absorbed into the record.
		const delay = time.Hour
		retryAt := w.clock().Add(delay)
		log.Printf("Temporary transport error for %s, rescheduling for %s: %v",
			email.ID, retryAt.Format(time.RFC3339), err)
		w.reschedule(d, email, delay, fmt.Sprintf("Temporary auth error. Retrying at %s",
			retryAt.Format(time.RFC3339)))
		return
	}

	// Terminal failure: record it and surface the error to the queue layer,
	// whose bounded backoff decides whether the job gets another attempt.
	log.Println("❌ Failed to send email", email.ID, ":", err)
	if uerr := w.Repo.MarkFailed(email.ID, err.Error()); uerr != nil {
		log.Println("⚠️ Failed to persist failure for", email.ID, ":", uerr)
	}
	d.Fail()
}

// reschedule persists the RESCHEDULED transition and then re-arms the
// in-flight job. If the process dies between the two steps the record is
// overdue with no live job; the sweep repairs exactly that drift.
func (w *Dispatcher) reschedule(d queue.Delivery, email *model.ScheduledEmail, delay time.Duration, reason string) {
	next := w.clock().Add(delay)
	if err := w.Repo.Reschedule(email.ID, next, reason); err != nil {
		log.Println("⚠️ Failed to persist reschedule for", email.ID, ":", err)
		d.Fail()
		return
	}
	if err := d.MoveToDelayed(delay); err != nil {
		log.Println("⚠️ Failed to re-arm job for", email.ID, ":", err)
	}
}

func (w *Dispatcher) sendTimeout() time.Duration {
	if w.SendTimeout > 0 {
		return w.SendTimeout
	}
	return 30 * time.Second
}

func (w *Dispatcher) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}
