package email

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"
)

const sendTimeout = 30 * time.Second

// MailgunSender sends mail through the Mailgun API.
type MailgunSender struct {
	client   *mailgun.MailgunImpl
	from     string
	log      *zap.SugaredLogger
	testMode bool
}

// NewMailgunSender builds a sender for domain using apiKey. fromName and
// fromAddress form the From header.
func NewMailgunSender(domain, apiKey, fromName, fromAddress string, log *zap.SugaredLogger) *MailgunSender {
	return &MailgunSender{
		client: mailgun.NewMailgun(domain, apiKey),
		from:   fmt.Sprintf("%s <%s>", fromName, fromAddress),
		log:    log.Named("email.mailgun"),
	}
}

// WithAPIBase points the client at another API host (EU region, test servers).
func (s *MailgunSender) WithAPIBase(base string) *MailgunSender {
	s.client.SetAPIBase(base)
	return s
}

// WithTestMode makes Mailgun accept messages without delivering them.
func (s *MailgunSender) WithTestMode() *MailgunSender {
	s.testMode = true
	return s
}

func (s *MailgunSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("mailgun: empty recipient")
	}

	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}

	m := s.client.NewMessage(s.from, msg.Subject, msg.Text, to)
	if msg.HTML != "" {
		m.SetHtml(msg.HTML)
	}
	if s.testMode {
		m.EnableTestMode()
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, id, err := s.client.Send(sendCtx, m)
	if err != nil {
		return errors.Wrapf(err, "mailgun send to %s", msg.To)
	}

	s.log.Debugw("email sent", "to", msg.To, "subject", msg.Subject, "messageId", id)
	return nil
}
