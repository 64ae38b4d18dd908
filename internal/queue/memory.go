// internal/queue/memory.go
package queue

import (
	"log"
	"sync"
	"time"
)

// InMemoryQueue is a delayed queue for tests and local development. It keeps
// the same contract as the AMQP queue: one claim per job, MoveToDelayed
// re-arms, Fail applies bounded exponential retry.
type InMemoryQueue struct {
	mu          sync.Mutex
	handler     func(Delivery)
	timers      map[string]*time.Timer
	maxAttempts int
	backoffBase time.Duration
	wg          sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(maxAttempts int) *InMemoryQueue {
	return &InMemoryQueue{
		timers:      make(map[string]*time.Timer),
		maxAttempts: maxAttempts,
		backoffBase: time.Second,
	}
}

// Enqueue arms a timer that fires the job into the handler after delay.
// Re-enqueueing the same jobID replaces any pending timer, mirroring the
// broker's jobID-based dedupe.
func (q *InMemoryQueue) Enqueue(jobID string, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.timers[jobID]; ok {
		if t.Stop() {
			// Replaced a still-armed copy of the same job.
			q.wg.Done()
		}
	}

	q.wg.Add(1)
	q.timers[jobID] = time.AfterFunc(delay, func() {
		defer q.wg.Done()

		q.mu.Lock()
		delete(q.timers, jobID)
		handler := q.handler
		q.mu.Unlock()

		if handler == nil {
			log.Println("⚠️ No consumer registered, dropping job:", jobID)
			return
		}
		handler(&memDelivery{q: q, jobID: jobID, job: job})
	})
	return nil
}

// Consume registers the handler. Unlike the AMQP consumer it does not block;
// deliveries run on timer goroutines.
func (q *InMemoryQueue) Consume(handler func(Delivery)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
	return nil
}

// Wait blocks until every armed and in-flight job has been resolved. Test
// hook; the AMQP queue has no equivalent.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

type memDelivery struct {
	q     *InMemoryQueue
	jobID string
	job   Job
}

func (m *memDelivery) Job() Job { return m.job }

func (m *memDelivery) Ack() error { return nil }

func (m *memDelivery) MoveToDelayed(delay time.Duration) error {
	return m.q.Enqueue(m.jobID, m.job, delay)
}

func (m *memDelivery) Fail() error {
	next := m.job
	next.Attempt++
	if next.Attempt >= m.q.maxAttempts {
		log.Printf("Job %s permanently failed after %d attempts", m.jobID, next.Attempt)
		return nil
	}
	backoff := m.q.backoffBase << uint(m.job.Attempt)
	return m.q.Enqueue(m.jobID, next, backoff)
}
