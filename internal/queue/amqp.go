// internal/queue/amqp.go
package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/streadway/amqp"
)

const (
	// DispatchQueue holds jobs ready for a worker.
	DispatchQueue = "email_dispatch"
	// WaitQueue parks delayed jobs. It has no consumers; expired messages
	// are dead-lettered into DispatchQueue by the broker.
	WaitQueue = "email_dispatch_wait"
)

// AMQPQueue implements DelayQueue and Consumer on RabbitMQ.
//
// Delay is implemented with the dead-letter pattern: a delayed job is
// published to the wait queue with a per-message TTL and falls into the
// dispatch queue when the TTL expires. Note the broker only expires from the
// head of the wait queue, so a short delay parked behind a long one is
// released late, never early — acceptable here because scheduled_at is a
// lower bound, not an exact fire time.
type AMQPQueue struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	concurrency int
	maxAttempts int
}

// NewAMQPQueue connects to the broker and declares both queues.
func NewAMQPQueue(url string, concurrency, maxAttempts int) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(DispatchQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare %s: %w", DispatchQueue, err)
	}

	waitArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DispatchQueue,
	}
	if _, err := ch.QueueDeclare(WaitQueue, true, false, false, false, waitArgs); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare %s: %w", WaitQueue, err)
	}

	if concurrency < 1 {
		concurrency = 1
	}

	return &AMQPQueue{
		conn:        conn,
		ch:          ch,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
	}, nil
}

// Close tears down the channel and connection.
func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

// Enqueue publishes a job. Zero delay goes straight to the dispatch queue;
// anything else parks in the wait queue with a TTL.
func (q *AMQPQueue) Enqueue(jobID string, job Job, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Body:         body,
	}

	target := DispatchQueue
	if delay > 0 {
		target = WaitQueue
		pub.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	if err := q.ch.Publish("", target, false, false, pub); err != nil {
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}
	return nil
}

// Consume starts the worker pool: prefetch bounds the number of unacked
// deliveries, and one goroutine per slot runs the handler. Blocks until the
// deliveries channel closes.
func (q *AMQPQueue) Consume(handler func(Delivery)) error {
	if err := q.ch.Qos(q.concurrency, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	msgs, err := q.ch.Consume(
		DispatchQueue,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	done := make(chan struct{})
	for i := 0; i < q.concurrency; i++ {
		go func() {
			for d := range msgs {
				var job Job
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Println("⚠️ Invalid job payload, dropping:", err)
					d.Ack(false)
					continue
				}
				handler(&amqpDelivery{q: q, d: d, job: job})
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < q.concurrency; i++ {
		<-done
	}
	return nil
}

type amqpDelivery struct {
	q   *AMQPQueue
	d   amqp.Delivery
	job Job
}

func (a *amqpDelivery) Job() Job { return a.job }

func (a *amqpDelivery) Ack() error {
	return a.d.Ack(false)
}

func (a *amqpDelivery) MoveToDelayed(delay time.Duration) error {
	// Publish the new copy first, then ack the claim. If we crash between
	// the two the job is delivered twice, which the worker absorbs (the
	// record's status gates every attempt); the reverse order could lose it.
	if err := a.q.Enqueue(a.d.MessageId, a.job, delay); err != nil {
		return err
	}
	return a.d.Ack(false)
}

func (a *amqpDelivery) Fail() error {
	next := a.job
	next.Attempt++
	if next.Attempt >= a.q.maxAttempts {
		log.Printf("Job %s permanently failed after %d attempts", a.d.MessageId, next.Attempt)
		return a.d.Ack(false)
	}

	// Exponential backoff: 1s, 2s, 4s...
	backoff := time.Second << uint(a.job.Attempt)
	if err := a.q.Enqueue(a.d.MessageId, next, backoff); err != nil {
		// Could not requeue; leave the claim unacked so the broker
		// redelivers after this channel dies.
		return err
	}
	return a.d.Ack(false)
}
