// internal/queue/queue.go
package queue

import "time"

// Job is the queue payload: a pure pointer to a scheduled email record.
// All mutable state lives in the record store, so a job can be re-enqueued
// freely without copying anything else around.
type Job struct {
	EmailID string `json:"email_id"`
	Attempt int    `json:"attempt"`
}

// DelayQueue accepts a job that must not be delivered to a worker before the
// delay has elapsed. The jobID is the record's idempotency key, so any
// queue-level dedupe lines up with the store's unique constraint.
type DelayQueue interface {
	Enqueue(jobID string, job Job, delay time.Duration) error
}

// Delivery is one claimed, in-flight job. The claim is exclusive: the queue
// hands the job to exactly one worker and will not redeliver it until one of
// the three methods below resolves it.
type Delivery interface {
	Job() Job

	// Ack completes the job.
	Ack() error

	// MoveToDelayed re-arms the in-flight job to fire again after delay
	// instead of completing it. The move doubles as the acknowledgment:
	// the new copy is durably queued before the claim is released.
	MoveToDelayed(delay time.Duration) error

	// Fail reports a terminal transport error upward. The queue applies its
	// own bounded retry policy (exponential backoff, fixed attempt budget);
	// once the budget is exhausted the job is dropped — the record already
	// carries FAILED with its failure reason.
	Fail() error
}

// Consumer feeds claimed deliveries to a handler until the queue closes or
// the consumer is stopped. Multiple distinct jobs may run concurrently, up
// to the implementation's configured concurrency.
type Consumer interface {
	Consume(handler func(Delivery)) error
}
