// Package email sends notification mail. Sender is the only thing the rest
// of the service depends on; Mailgun and a log-only sender implement it.
package email

import (
	"context"

	"go.uber.org/zap"
)

// Message is one outgoing email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message or returns an error. No delivery receipt is
// reported back.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of sending them. Used when
// EMAIL_ENABLED=false.
type LogSender struct {
	log *zap.SugaredLogger
}

// NewLogSender returns a LogSender.
func NewLogSender(log *zap.SugaredLogger) *LogSender {
	return &LogSender{log: log.Named("email.log")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Infow("email (not sent, EMAIL_ENABLED=false)",
		"to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}
