// internal/service/fakes_test.go
package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/allocatr/email-scheduler-backend/internal/errors"
	"github.com/allocatr/email-scheduler-backend/internal/mailer"
	"github.com/allocatr/email-scheduler-backend/internal/model"
	"github.com/allocatr/email-scheduler-backend/internal/queue"
)

// fakeRepo stores records in memory and keeps a per-record status history so
// tests can assert transitions never regress.
type fakeRepo struct {
	mu        sync.Mutex
	byID      map[string]*model.ScheduledEmail
	statusLog map[string][]model.Status
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:      make(map[string]*model.ScheduledEmail),
		statusLog: make(map[string][]model.Status),
	}
}

func (r *fakeRepo) Create(email *model.ScheduledEmail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byID {
		if e.IdempotencyKey == email.IdempotencyKey {
			return appErrors.NewDuplicateAdmission(email.IdempotencyKey)
		}
	}
	email.ID = uuid.New().String()
	email.Status = model.StatusPending
	email.CreatedAt = time.Now()
	cp := *email
	r.byID[email.ID] = &cp
	r.statusLog[email.ID] = append(r.statusLog[email.ID], email.Status)
	return nil
}

func (r *fakeRepo) GetByID(id string) (*model.ScheduledEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) GetByIdempotencyKey(key string) (*model.ScheduledEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byID {
		if e.IdempotencyKey == key {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) MarkSent(id string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("no such email: %s", id)
	}
	e.Status = model.StatusSent
	e.SentAt = &sentAt
	e.FailureReason = ""
	r.statusLog[id] = append(r.statusLog[id], e.Status)
	return nil
}

func (r *fakeRepo) MarkFailed(id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("no such email: %s", id)
	}
	e.Status = model.StatusFailed
	e.FailureReason = reason
	r.statusLog[id] = append(r.statusLog[id], e.Status)
	return nil
}

func (r *fakeRepo) Reschedule(id string, scheduledAt time.Time, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("no such email: %s", id)
	}
	e.Status = model.StatusRescheduled
	e.ScheduledAt = scheduledAt
	e.FailureReason = reason
	r.statusLog[id] = append(r.statusLog[id], e.Status)
	return nil
}

func (r *fakeRepo) ListPending(sender string) ([]model.ScheduledEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.ScheduledEmail{}
	for _, e := range r.byID {
		if e.Sender == sender && e.Status == model.StatusPending {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListHistory(sender string) ([]model.ScheduledEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.ScheduledEmail{}
	for _, e := range r.byID {
		if e.Sender == sender && (e.Status == model.StatusSent || e.Status == model.StatusFailed) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) ReconcileOverdue(sender string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.byID {
		if e.Sender == sender && e.Status == model.StatusPending && !e.ScheduledAt.After(now) {
			e.Status = model.StatusSent
			t := now
			e.SentAt = &t
			r.statusLog[id] = append(r.statusLog[id], e.Status)
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) ListDueForSweep(cutoff time.Time) ([]model.ScheduledEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.ScheduledEmail{}
	for _, e := range r.byID {
		if (e.Status == model.StatusPending || e.Status == model.StatusRescheduled) &&
			!e.ScheduledAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	return out, nil
}

// fakeQueue records enqueue calls.
type fakeQueue struct {
	mu       sync.Mutex
	enqueues []enqueueCall
}

type enqueueCall struct {
	jobID string
	job   queue.Job
	delay time.Duration
}

func (q *fakeQueue) Enqueue(jobID string, job queue.Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueues = append(q.enqueues, enqueueCall{jobID: jobID, job: job, delay: delay})
	return nil
}

func (q *fakeQueue) calls() []enqueueCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]enqueueCall, len(q.enqueues))
	copy(out, q.enqueues)
	return out
}

// fakeDelivery is one claimed job whose resolution the test can inspect.
type fakeDelivery struct {
	mu        sync.Mutex
	job       queue.Job
	acked     bool
	failed    bool
	moved     bool
	moveDelay time.Duration
}

func (d *fakeDelivery) Job() queue.Job { return d.job }

func (d *fakeDelivery) Ack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acked = true
	return nil
}

func (d *fakeDelivery) MoveToDelayed(delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.moved = true
	d.moveDelay = delay
	return nil
}

func (d *fakeDelivery) Fail() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = true
	return nil
}

// fakeLimiter enforces a cap with an in-memory counter and mirrors the real
// limiter's next-window arithmetic.
type fakeLimiter struct {
	mu       sync.Mutex
	cap      int
	count    int
	recorded []string
}

func (l *fakeLimiter) Allow(ctx context.Context, sender string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count < l.cap, nil
}

func (l *fakeLimiter) Record(ctx context.Context, sender string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	l.recorded = append(l.recorded, sender)
	return nil
}

func (l *fakeLimiter) SecondsUntilNextWindow() int {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
	return int(next.Sub(now).Seconds()) + 1
}

// fakeSender returns a canned result and records what it was asked to send.
type fakeSender struct {
	mu    sync.Mutex
	err   error
	sends []string
}

func (s *fakeSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sends = append(s.sends, to)
	return "msg-" + to, nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

type fakeResolver struct {
	sender mailer.Sender
}

func (r *fakeResolver) Resolve(email *model.ScheduledEmail) mailer.Sender {
	return r.sender
}
