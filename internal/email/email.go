// Package email delivers account lifecycle notifications. Delivery is
// best-effort from the caller's point of view: the account service logs
// failures and continues.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"hrdesk.org/internal/obs"
)

// Sender dispatches a single HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender sends through a plain-auth SMTP relay.
type SMTPSender struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if s.Addr == "" {
		return fmt.Errorf("email: smtp address is not configured")
	}
	host := s.Addr
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}
	msg := buildMessage(s.From, to, subject, htmlBody)
	if err := smtp.SendMail(s.Addr, auth, s.From, []string{to}, msg); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

// LogSender writes would-be emails to the structured log. Default in
// development and tests where no relay is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	obs.LogRequest(map[string]any{
		"component": "email",
		"msg":       "email suppressed (no SMTP relay configured)",
		"to":        to,
		"subject":   subject,
	})
	return nil
}
