// internal/mailer/smtp.go
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/google/uuid"
)

// SMTPSender delivers mail through a single SMTP relay with PLAIN auth.
type SMTPSender struct {
	host    string
	port    int
	user    string
	pass    string
	timeout time.Duration
}

// NewSMTPSender creates a sender for the given relay and credentials.
func NewSMTPSender(host string, port int, user, pass string, timeout time.Duration) *SMTPSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPSender{host: host, port: port, user: user, pass: pass, timeout: timeout}
}

// Send performs one SMTP transaction. The whole exchange is bounded by the
// configured timeout via a connection deadline; a stuck relay surfaces as an
// ordinary send error, never a hang.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) (string, error) {
	messageID := fmt.Sprintf("%s@%s", uuid.New().String(), s.host)
	msg := s.buildMessage(to, subject, body, messageID)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	dialer := &net.Dialer{Timeout: s.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(s.timeout))

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("SMTP client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return "", classifySendErr(fmt.Errorf("STARTTLS: %w", err))
		}
	}

	if s.user != "" && s.pass != "" {
		auth := smtp.PlainAuth("", s.user, s.pass, s.host)
		if err := c.Auth(auth); err != nil {
			return "", classifySendErr(fmt.Errorf("AUTH: %w", err))
		}
	}

	if err := c.Mail(s.from()); err != nil {
		return "", classifySendErr(fmt.Errorf("MAIL FROM: %w", err))
	}
	if err := c.Rcpt(to); err != nil {
		return "", classifySendErr(fmt.Errorf("RCPT TO: %w", err))
	}

	w, err := c.Data()
	if err != nil {
		return "", classifySendErr(fmt.Errorf("DATA: %w", err))
	}
	if _, err := w.Write(msg); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", classifySendErr(fmt.Errorf("DATA close: %w", err))
	}

	if err := c.Quit(); err != nil {
		// The message is already accepted; a failed QUIT is not a failed send.
		return messageID, nil
	}
	return messageID, nil
}

func (s *SMTPSender) from() string {
	if s.user != "" {
		return s.user
	}
	return "allocator@example.com"
}

func (s *SMTPSender) buildMessage(to, subject, body, messageID string) []byte {
	var buf bytes.Buffer
	if s.user != "" {
		buf.WriteString(fmt.Sprintf("From: %q <%s>\r\n", s.user, s.user))
	} else {
		buf.WriteString("From: \"Allocator Service\" <allocator@example.com>\r\n")
	}
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", messageID))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}
