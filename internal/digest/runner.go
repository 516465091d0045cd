// Package digest batches pending job notifications into one email per
// contractor.
package digest

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/email"
	"builderpulse/notification-service/internal/metrics"
	"builderpulse/notification-service/internal/model"
	"builderpulse/notification-service/internal/store"
)

// Store is the data the runner reads and writes. *store.Postgres implements
// it; Profile and ContractorRecipient return store.ErrNotFound for missing
// rows.
type Store interface {
	PendingContractorIDs(ctx context.Context, limit int) ([]string, error)
	Profile(ctx context.Context, contractorID string) (model.ContractorProfile, error)
	PendingBatch(ctx context.Context, contractorID string, limit int) ([]model.PendingJob, error)
	ContractorRecipient(ctx context.Context, contractorID string) (model.Recipient, error)
	SetLastDigestSent(ctx context.Context, contractorID string, at time.Time) error
	MarkSent(ctx context.Context, notificationIDs []string, at time.Time) (int, error)
}

// Config bounds one pass.
type Config struct {
	// MinInterval is the shortest gap between two digests to one contractor.
	// Values below one minute are raised to one minute.
	MinInterval    time.Duration
	MaxContractors int
	MaxBatchSize   int
	// IsolateFailures keeps the pass going when one contractor fails.
	IsolateFailures bool
}

// Summary counts what one pass did.
type Summary struct {
	ContractorsProcessed int `json:"contractorsProcessed"`
	NotificationsSent    int `json:"notificationsSent"`
	EmailsSent           int `json:"emailsSent"`
	ContractorsFailed    int `json:"contractorsFailed"`
}

// Runner executes digest passes.
type Runner struct {
	store     Store
	sender    email.Sender
	templates *email.Templates
	clock     Clock
	cfg       Config
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewRunner returns a Runner. A nil clock means SystemClock; m may be nil.
func NewRunner(st Store, sender email.Sender, tpl *email.Templates, clock Clock,
	cfg Config, log *zap.SugaredLogger, m *metrics.Metrics) *Runner {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.MinInterval < time.Minute {
		cfg.MinInterval = time.Minute
	}
	if cfg.MaxContractors <= 0 {
		cfg.MaxContractors = 200
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 25
	}
	return &Runner{
		store:     st,
		sender:    sender,
		templates: tpl,
		clock:     clock,
		cfg:       cfg,
		log:       log.Named("digest"),
		metrics:   m,
		tracer:    otel.Tracer("builderpulse/notification-service/digest"),
	}
}

// outcome of one contractor within a pass.
type outcome int

const (
	skipped outcome = iota
	markedOnly
	emailed
)

// RunOnce runs one digest pass. On error the returned Summary holds the
// counts accumulated before the failure.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "digest.run_once")
	defer span.End()

	err := r.run(ctx, &sum)

	span.SetAttributes(
		attribute.Int("digest.contractors_processed", sum.ContractorsProcessed),
		attribute.Int("digest.notifications_sent", sum.NotificationsSent),
		attribute.Int("digest.emails_sent", sum.EmailsSent),
		attribute.Int("digest.contractors_failed", sum.ContractorsFailed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "digest pass failed")
	}
	r.metrics.DigestPass(time.Since(start), sum.EmailsSent, sum.NotificationsSent, sum.ContractorsFailed, err)
	return sum, err
}

func (r *Runner) run(ctx context.Context, sum *Summary) error {
	ids, err := r.store.PendingContractorIDs(ctx, r.cfg.MaxContractors)
	if err != nil {
		return errors.Wrap(err, "list pending contractors")
	}
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		marked, res, err := r.processContractor(ctx, id)
		sum.NotificationsSent += marked
		switch {
		case err != nil:
			if !r.cfg.IsolateFailures {
				return errors.Wrapf(err, "contractor %s", id)
			}
			sum.ContractorsFailed++
			r.log.Errorw("digest failed for contractor; continuing", "contractorId", id, "err", err)
		case res == emailed:
			sum.ContractorsProcessed++
			sum.EmailsSent++
		case res == markedOnly:
			sum.ContractorsProcessed++
		}
	}

	r.log.Infow("digest pass done",
		"contractors", sum.ContractorsProcessed,
		"notifications", sum.NotificationsSent,
		"emails", sum.EmailsSent,
		"failed", sum.ContractorsFailed)
	return nil
}

// processContractor returns how many rows it marked sent, even on error.
func (r *Runner) processContractor(ctx context.Context, contractorID string) (int, outcome, error) {
	profile, err := r.store.Profile(ctx, contractorID)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Debugw("no profile; leaving notifications pending", "contractorId", contractorID)
		return 0, skipped, nil
	}
	if err != nil {
		return 0, skipped, errors.Wrap(err, "load profile")
	}
	if !profile.IsAvailable {
		return 0, skipped, nil
	}

	now := r.clock.Now()
	if last := profile.LastDigestSentAt; last != nil && now.Sub(*last) < r.cfg.MinInterval {
		return 0, skipped, nil
	}

	batch, err := r.store.PendingBatch(ctx, contractorID, r.cfg.MaxBatchSize)
	if err != nil {
		return 0, skipped, errors.Wrap(err, "load pending batch")
	}
	if len(batch) == 0 {
		return 0, skipped, nil
	}
	ids := notificationIDs(batch)

	to, err := r.store.ContractorRecipient(ctx, contractorID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, skipped, errors.Wrap(err, "resolve contractor email")
	}
	if to.Email == "" {
		// Nobody to mail: drain the rows so they do not pile up.
		n, err := r.store.MarkSent(context.WithoutCancel(ctx), ids, now)
		if err != nil {
			return 0, skipped, errors.Wrap(err, "mark sent without email")
		}
		r.log.Infow("contractor has no email; marked notifications sent",
			"contractorId", contractorID, "count", n)
		return n, markedOnly, nil
	}

	msg, err := Compose(r.templates, to, batch, r.cfg.MinInterval)
	if err != nil {
		return 0, skipped, err
	}
	if err := r.sender.Send(ctx, msg); err != nil {
		return 0, skipped, errors.Wrap(err, "send digest email")
	}

	// The email is out, so the bookkeeping must land even if the pass is
	// being cancelled. Failures below leave rows pending and the next pass
	// sends them again.
	wctx := context.WithoutCancel(ctx)
	if err := r.store.SetLastDigestSent(wctx, contractorID, now); err != nil {
		return 0, skipped, errors.Wrap(err, "set last digest sent")
	}
	n, err := r.store.MarkSent(wctx, ids, now)
	if err != nil {
		return 0, skipped, errors.Wrap(err, "mark sent")
	}

	r.log.Debugw("digest sent", "contractorId", contractorID, "jobs", len(batch))
	return n, emailed, nil
}

func notificationIDs(batch []model.PendingJob) []string {
	ids := make([]string, len(batch))
	for i, p := range batch {
		ids[i] = p.NotificationID
	}
	return ids
}
