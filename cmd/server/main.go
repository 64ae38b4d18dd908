// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/allocatr/email-scheduler-backend/internal/config"
	"github.com/allocatr/email-scheduler-backend/internal/controller"
	"github.com/allocatr/email-scheduler-backend/internal/db"
	"github.com/allocatr/email-scheduler-backend/internal/queue"
	"github.com/allocatr/email-scheduler-backend/internal/repository"
	"github.com/allocatr/email-scheduler-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg := config.FromEnv()

	// Init DB
	db.Init(cfg)

	q, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.WorkerConcurrency, cfg.QueueMaxAttempts)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}
	defer q.Close()

	emailRepo := &repository.EmailRepository{DB: db.DB}

	emailService := &service.EmailService{
		Repo:  emailRepo,
		Queue: q,
	}

	emailController := &controller.EmailController{
		EmailService: emailService,
	}

	r := chi.NewRouter()

	// Email routes
	r.Post("/schedule", emailController.Schedule)
	r.Get("/scheduled", emailController.GetScheduled)
	r.Get("/sent", emailController.GetSent)

	addr := ":" + cfg.Port
	log.Println("🚀 Server running on", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
