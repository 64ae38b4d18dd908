// internal/controller/email_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	appErrors "github.com/allocatr/email-scheduler-backend/internal/errors"
	"github.com/allocatr/email-scheduler-backend/internal/service"
)

type EmailController struct {
	EmailService *service.EmailService
}

// Schedule admits one delivery. Replays with the same idempotency key get
// the existing record back with the same 201.
func (c *EmailController) Schedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To             string `json:"to"`
		Subject        string `json:"subject"`
		Body           string `json:"body"`
		ScheduledAt    string `json:"scheduledAt"`
		Sender         string `json:"sender"`
		IdempotencyKey string `json:"idempotencyKey"`
		SMTPUser       string `json:"smtpUser"`
		SMTPPass       string `json:"smtpPass"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if body.To == "" || body.Subject == "" || body.Body == "" ||
		body.ScheduledAt == "" || body.Sender == "" || body.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, body.ScheduledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "scheduledAt must be an ISO-8601 timestamp")
		return
	}

	email, err := c.EmailService.ScheduleEmail(service.ScheduleRequest{
		To:             body.To,
		Subject:        body.Subject,
		Body:           body.Body,
		ScheduledAt:    scheduledAt,
		Sender:         body.Sender,
		IdempotencyKey: body.IdempotencyKey,
		SMTPUser:       body.SMTPUser,
		SMTPPass:       body.SMTPPass,
	})
	if err != nil {
		var vErr *appErrors.ValidationError
		var dup *appErrors.DuplicateAdmission
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Error())
		case errors.As(err, &dup):
			// Only reachable when the race winner's row could not be read
			// back; a resolvable race returns the existing record instead.
			writeError(w, http.StatusConflict, "Duplicate idempotency key")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(email)
}

// GetScheduled lists the sender's PENDING records.
func (c *EmailController) GetScheduled(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender")

	emails, err := c.EmailService.GetScheduledEmails(sender)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(emails)
}

// GetSent lists the sender's SENT and FAILED records after reconciliation.
func (c *EmailController) GetSent(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender")

	emails, err := c.EmailService.GetSentEmails(sender)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(emails)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
