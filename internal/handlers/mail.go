package handlers

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/email"
	"builderpulse/notification-service/internal/events"
	"builderpulse/notification-service/internal/model"
	"builderpulse/notification-service/internal/store"
)

// RecipientStore resolves the people a transactional email goes to.
type RecipientStore interface {
	Job(ctx context.Context, jobID string) (model.Job, error)
	UserRecipient(ctx context.Context, userID string) (model.Recipient, error)
	ContractorRecipient(ctx context.Context, contractorID string) (model.Recipient, error)
}

// Mailer sends the per-event emails. A recipient with no address on file is
// logged and skipped.
type Mailer struct {
	store     RecipientStore
	sender    email.Sender
	templates *email.Templates
	log       *zap.SugaredLogger
}

func NewMailer(st RecipientStore, sender email.Sender, tpl *email.Templates, log *zap.SugaredLogger) *Mailer {
	return &Mailer{store: st, sender: sender, templates: tpl, log: log.Named("email.transactional")}
}

// BidPlaced tells the job owner about a new bid.
func (m *Mailer) BidPlaced(ctx context.Context, ev events.BidPlaced) error {
	job, err := m.store.Job(ctx, ev.JobID)
	if err != nil {
		return errors.Wrap(err, "load job")
	}
	owner, err := m.recipient(ctx, m.store.UserRecipient, job.ClientID)
	if err != nil || owner == nil {
		return err
	}

	bidder := "A contractor"
	if c, err := m.store.ContractorRecipient(ctx, ev.ContractorID); err == nil && c.Name != "" {
		bidder = c.Name
	}

	return m.send(ctx, ev, *owner, "New bid on "+job.Title, email.TplBidPlaced, map[string]any{
		"contractor": bidder,
		"amount":     FormatAmount(ev.AmountCents),
		"jobTitle":   job.Title,
		"jobId":      job.ID,
	})
}

// BidAccepted tells the contractor their bid won.
func (m *Mailer) BidAccepted(ctx context.Context, ev events.BidAccepted) error {
	return m.toContractor(ctx, ev, ev.JobID, ev.ContractorID, "Your bid was accepted", email.TplBidAccepted)
}

// JobCompleted tells the contractor the job was closed.
func (m *Mailer) JobCompleted(ctx context.Context, ev events.JobCompleted) error {
	return m.toContractor(ctx, ev, ev.JobID, ev.ContractorID, "Job completed", email.TplJobCompleted)
}

// MessagePosted tells the recipient about a new message on a job thread.
func (m *Mailer) MessagePosted(ctx context.Context, ev events.MessagePosted) error {
	job, err := m.store.Job(ctx, ev.JobID)
	if err != nil {
		return errors.Wrap(err, "load job")
	}
	to, err := m.recipient(ctx, m.store.UserRecipient, ev.RecipientID)
	if err != nil || to == nil {
		return err
	}

	sender := "Someone"
	if u, err := m.store.UserRecipient(ctx, ev.SenderID); err == nil && u.Name != "" {
		sender = u.Name
	}

	return m.send(ctx, ev, *to, "New message from "+sender, email.TplMessagePosted, map[string]any{
		"sender":   sender,
		"preview":  ev.Preview,
		"jobTitle": job.Title,
		"jobId":    job.ID,
	})
}

func (m *Mailer) toContractor(ctx context.Context, ev events.Event, jobID, contractorID, subject, tpl string) error {
	job, err := m.store.Job(ctx, jobID)
	if err != nil {
		return errors.Wrap(err, "load job")
	}
	to, err := m.recipient(ctx, m.store.ContractorRecipient, contractorID)
	if err != nil || to == nil {
		return err
	}
	return m.send(ctx, ev, *to, subject+": "+job.Title, tpl, map[string]any{
		"jobTitle": job.Title,
		"jobId":    job.ID,
	})
}

// recipient returns nil, nil when the person is unknown or has no email.
func (m *Mailer) recipient(ctx context.Context,
	lookup func(context.Context, string) (model.Recipient, error), id string) (*model.Recipient, error) {
	r, err := lookup(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		m.log.Warnw("recipient not found; email skipped", "id", id)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolve recipient")
	}
	if r.Email == "" {
		m.log.Warnw("recipient has no email; email skipped", "id", id)
		return nil, nil
	}
	return &r, nil
}

func (m *Mailer) send(ctx context.Context, ev events.Event, to model.Recipient,
	subject, tpl string, data map[string]any) error {
	name := to.Name
	if name == "" {
		name = "there"
	}
	data["name"] = name

	body, err := m.templates.Render(tpl, data)
	if err != nil {
		return err
	}
	if err := m.sender.Send(ctx, email.Message{
		To:      to.Email,
		ToName:  to.Name,
		Subject: subject,
		Text:    body,
	}); err != nil {
		return errors.Wrapf(err, "send %s email", ev.Kind())
	}
	m.log.Debugw("transactional email sent", "kind", ev.Kind(), "eventId", ev.EventID(), "to", to.Email)
	return nil
}

// FormatAmount renders cents as a decimal amount with thousands separators.
func FormatAmount(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	for i := len(whole) - 3; i > 0; i -= 3 {
		whole = whole[:i] + "," + whole[i:]
	}
	out := fmt.Sprintf("%s.%02d", whole, cents%100)
	if neg {
		out = "-" + out
	}
	return out
}
