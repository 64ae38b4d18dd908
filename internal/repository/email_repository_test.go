// internal/repository/email_repository_test.go
package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/allocatr/email-scheduler-backend/internal/errors"
	"github.com/allocatr/email-scheduler-backend/internal/model"
)

func setupRepo(t *testing.T) (*EmailRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &EmailRepository{DB: db}, mock
}

func emailColumns() []string {
	return []string{
		"id", "to_address", "subject", "body", "sender", "scheduled_at", "sent_at",
		"status", "failure_reason", "idempotency_key", "smtp_user", "smtp_pass", "created_at",
	}
}

func TestCreateAssignsIDAndStatus(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectExec("INSERT INTO scheduled_emails").
		WillReturnResult(sqlmock.NewResult(0, 1))

	email := &model.ScheduledEmail{
		To:             "alice@example.com",
		Subject:        "Welcome",
		Body:           "Hello",
		Sender:         "a@x.com",
		ScheduledAt:    time.Now().Add(time.Hour),
		IdempotencyKey: "k1",
	}
	require.NoError(t, repo.Create(email))

	assert.NotEmpty(t, email.ID)
	assert.Equal(t, model.StatusPending, email.Status)
	assert.False(t, email.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolationToDuplicateAdmission(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectExec("INSERT INTO scheduled_emails").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "scheduled_emails_idempotency_key_key"})

	email := &model.ScheduledEmail{
		To: "alice@example.com", Subject: "s", Body: "b", Sender: "a@x.com",
		ScheduledAt: time.Now(), IdempotencyKey: "k1",
	}
	err := repo.Create(email)

	var dup *appErrors.DuplicateAdmission
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "k1", dup.IdempotencyKey)
}

func TestGetByIdempotencyKeyNotFound(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM scheduled_emails WHERE idempotency_key").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(emailColumns()))

	email, err := repo.GetByIdempotencyKey("missing")
	require.NoError(t, err)
	assert.Nil(t, email, "absent record reads as nil, not an error")
}

func TestGetByIDScansNullableFields(t *testing.T) {
	repo, mock := setupRepo(t)

	created := time.Now().Add(-time.Hour)
	scheduled := time.Now()
	rows := sqlmock.NewRows(emailColumns()).AddRow(
		"id-1", "alice@example.com", "Welcome", "Hello", "a@x.com", scheduled, nil,
		"PENDING", "", "k1", "", "", created,
	)
	mock.ExpectQuery("SELECT (.+) FROM scheduled_emails WHERE id").
		WithArgs("id-1").
		WillReturnRows(rows)

	email, err := repo.GetByID("id-1")
	require.NoError(t, err)
	require.NotNil(t, email)
	assert.Equal(t, model.StatusPending, email.Status)
	assert.Nil(t, email.SentAt)
	assert.Empty(t, email.FailureReason)
}

func TestReconcileOverdueReturnsFlippedCount(t *testing.T) {
	repo, mock := setupRepo(t)

	mock.ExpectExec("UPDATE scheduled_emails").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ReconcileOverdue("a@x.com", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestListHistoryScansRows(t *testing.T) {
	repo, mock := setupRepo(t)

	sentAt := time.Now()
	rows := sqlmock.NewRows(emailColumns()).
		AddRow("id-1", "alice@example.com", "s1", "b1", "a@x.com", sentAt.Add(-time.Minute), sentAt,
			"SENT", "", "k1", "", "", sentAt.Add(-time.Hour)).
		AddRow("id-2", "bob@example.com", "s2", "b2", "a@x.com", sentAt.Add(-time.Minute), nil,
			"FAILED", "550 mailbox unavailable", "k2", "", "", sentAt.Add(-2*time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM scheduled_emails").
		WithArgs("a@x.com", model.StatusSent, model.StatusFailed).
		WillReturnRows(rows)

	history, err := repo.ListHistory("a@x.com")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, model.StatusSent, history[0].Status)
	require.NotNil(t, history[0].SentAt)

	assert.Equal(t, model.StatusFailed, history[1].Status)
	assert.Nil(t, history[1].SentAt)
	assert.Equal(t, "550 mailbox unavailable", history[1].FailureReason)
}

func TestRescheduleUpdatesScheduleAndReason(t *testing.T) {
	repo, mock := setupRepo(t)

	next := time.Now().Add(time.Hour)
	mock.ExpectExec("UPDATE scheduled_emails").
		WithArgs(model.StatusRescheduled, next, "rate limited", "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Reschedule("id-1", next, "rate limited"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
