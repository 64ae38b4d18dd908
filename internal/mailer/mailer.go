// internal/mailer/mailer.go
package mailer

import (
	"context"
	"errors"
	"net/textproto"
	"strings"
)

// Sender is the outbound transport contract: deliver one literal-text email
// and return the transport's message id.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (messageID string, err error)
}

// TransientError marks a send failure in the recoverable auth/throttle class
// (e.g. "too many login attempts"). The dispatch worker absorbs these into a
// fixed one-hour reschedule instead of recording a terminal failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err belongs to the recoverable class.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// transient SMTP reply codes: 454 (auth temporarily unavailable / too many
// login attempts) and 421 (service not available, closing channel).
func isTransientCode(code int) bool {
	return code == 454 || code == 421
}

// classifySendErr wraps recoverable auth/throttle failures in TransientError
// and leaves everything else untouched for the terminal-failure path.
func classifySendErr(err error) error {
	if err == nil {
		return nil
	}

	var proto *textproto.Error
	if errors.As(err, &proto) && isTransientCode(proto.Code) {
		return &TransientError{Err: err}
	}

	// Some servers close the connection before a structured reply arrives;
	// fall back to matching the reply text.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "too many login attempts") ||
		strings.Contains(msg, "454 ") ||
		strings.Contains(msg, "4.7.0") {
		return &TransientError{Err: err}
	}

	return err
}
