package digest

import (
	"fmt"
	"time"

	"builderpulse/notification-service/internal/email"
	"builderpulse/notification-service/internal/model"
)

// Subject returns the digest subject line for n jobs.
func Subject(n int) string {
	if n == 1 {
		return "1 new job matches your trades"
	}
	return fmt.Sprintf("%d new jobs match your trades", n)
}

// Line is how one job appears in the digest body.
func Line(j model.PendingJob) string {
	return j.Trade + ": " + j.Title
}

// Compose builds the digest email for one contractor. Jobs appear in batch
// order.
func Compose(tpl *email.Templates, to model.Recipient, batch []model.PendingJob, window time.Duration) (email.Message, error) {
	lines := make([]string, len(batch))
	for i, j := range batch {
		lines[i] = Line(j)
	}

	name := to.Name
	if name == "" {
		name = "there"
	}
	data := map[string]any{
		"name":   name,
		"count":  len(batch),
		"single": len(batch) == 1,
		"lines":  lines,
		"window": humanWindow(window),
	}

	text, err := tpl.Render(email.TplDigestText, data)
	if err != nil {
		return email.Message{}, err
	}
	html, err := tpl.Render(email.TplDigestHTML, data)
	if err != nil {
		return email.Message{}, err
	}

	return email.Message{
		To:      to.Email,
		ToName:  to.Name,
		Subject: Subject(len(batch)),
		Text:    text,
		HTML:    html,
	}, nil
}

func humanWindow(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d == time.Minute:
		return "minute"
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}
