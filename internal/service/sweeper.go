// internal/service/sweeper.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/allocatr/email-scheduler-backend/internal/queue"
	"github.com/allocatr/email-scheduler-backend/internal/repository"
)

// Sweeper is the reconciliation safety net. The record store is the source
// of truth; if a crash lands between "persist RESCHEDULED" and "re-arm the
// queue job", the record sits overdue with no trigger. The sweep finds such
// records and re-enqueues them with zero delay. Redundant deliveries are
// harmless: the dispatcher's status guard makes re-entry a no-op.
type Sweeper struct {
	Repo     repository.EmailRepositoryInterface
	Queue    queue.DelayQueue
	Interval time.Duration

	// Grace keeps the sweep from racing jobs that are merely a little late
	// in the queue. Only records overdue by more than this are re-armed.
	Grace time.Duration
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("🧹 Reconciliation sweep running every", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(); err != nil {
				log.Println("⚠️ Sweep failed:", err)
			} else if n > 0 {
				log.Printf("Sweep re-enqueued %d stuck email(s)", n)
			}
		}
	}
}

// Sweep runs one pass and returns how many records were re-enqueued.
func (s *Sweeper) Sweep() (int, error) {
	grace := s.Grace
	if grace <= 0 {
		grace = 2 * time.Minute
	}

	due, err := s.Repo.ListDueForSweep(time.Now().Add(-grace))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, email := range due {
		if err := s.Queue.Enqueue(email.IdempotencyKey, queue.Job{EmailID: email.ID}, 0); err != nil {
			log.Println("⚠️ Sweep failed to enqueue", email.ID, ":", err)
			continue
		}
		count++
	}
	return count, nil
}
