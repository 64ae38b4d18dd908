// cmd/worker/main.go
package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/allocatr/email-scheduler-backend/internal/config"
	"github.com/allocatr/email-scheduler-backend/internal/db"
	"github.com/allocatr/email-scheduler-backend/internal/mailer"
	"github.com/allocatr/email-scheduler-backend/internal/queue"
	"github.com/allocatr/email-scheduler-backend/internal/ratelimit"
	"github.com/allocatr/email-scheduler-backend/internal/repository"
	"github.com/allocatr/email-scheduler-backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg := config.FromEnv()

	// Connect to DB
	db.Init(cfg)
	emailRepo := &repository.EmailRepository{DB: db.DB}

	// Connect to Redis (rate-limit counter store)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	limiter := ratelimit.New(rdb, cfg.MaxEmailsPerHour)

	// Connect to RabbitMQ
	q, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.WorkerConcurrency, cfg.QueueMaxAttempts)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}
	defer q.Close()

	dispatcher := &service.Dispatcher{
		Repo:        emailRepo,
		Limiter:     limiter,
		Resolver:    mailer.NewResolver(cfg),
		SendTimeout: cfg.SendTimeout,
	}

	// Reconciliation sweep: re-arms records whose queue job was lost to a
	// crash between the status write and the re-enqueue.
	sweeper := &service.Sweeper{
		Repo:     emailRepo,
		Queue:    q,
		Interval: cfg.SweepInterval,
	}
	go sweeper.Run(context.Background())

	log.Printf("Worker running with concurrency %d, waiting for jobs...", cfg.WorkerConcurrency)
	if err := q.Consume(dispatcher.Handle); err != nil {
		log.Fatal("Consumer stopped:", err)
	}
}
