// internal/mailer/resolver.go
package mailer

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/allocatr/email-scheduler-backend/internal/config"
	"github.com/allocatr/email-scheduler-backend/internal/model"
)

// Resolver picks the transport for one record: the record's own SMTP
// credentials when present, otherwise the process-wide default.
type Resolver struct {
	cfg      *config.Config
	fallback Sender
}

// NewResolver builds a resolver from process configuration. When no default
// credentials are configured the fallback is the sandbox sender, so local
// runs never need a real relay.
func NewResolver(cfg *config.Config) *Resolver {
	var fallback Sender
	if cfg.EmailUser != "" && cfg.EmailPass != "" {
		fallback = NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPass, cfg.SendTimeout)
	} else {
		log.Println("⚠️ No EMAIL_USER/EMAIL_PASS configured, using sandbox sender")
		fallback = &SandboxSender{}
	}
	return &Resolver{cfg: cfg, fallback: fallback}
}

// Resolve returns the sender for the record.
func (r *Resolver) Resolve(email *model.ScheduledEmail) Sender {
	if email.SMTPUser != "" && email.SMTPPass != "" {
		log.Println("Using custom SMTP credentials for", email.SMTPUser)
		return NewSMTPSender(r.cfg.SMTPHost, r.cfg.SMTPPort, email.SMTPUser, email.SMTPPass, r.cfg.SendTimeout)
	}
	return r.fallback
}

// SandboxSender accepts everything without touching the network. Stands in
// for a test relay during local development and in tests.
type SandboxSender struct{}

func (s *SandboxSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	id := uuid.New().String() + "@sandbox"
	log.Printf("📧 [sandbox] to=%s subject=%q message-id=%s", to, subject, id)
	// Simulate a little network latency so concurrency bugs still surface.
	time.Sleep(10 * time.Millisecond)
	return id, nil
}
