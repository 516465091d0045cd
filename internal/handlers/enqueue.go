package handlers

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/events"
	"builderpulse/notification-service/internal/matching"
	"builderpulse/notification-service/internal/model"
)

// EnqueueStore is what the digest enqueuer reads and writes.
type EnqueueStore interface {
	Job(ctx context.Context, jobID string) (model.Job, error)
	CandidateProfiles(ctx context.Context, trade string) ([]model.ContractorProfile, error)
	InsertNotifications(ctx context.Context, jobID string, contractorIDs []string) (int, error)
}

// DigestEnqueuer creates pending notifications for every contractor a newly
// posted job matches. The digest runner turns them into emails later.
type DigestEnqueuer struct {
	store EnqueueStore
	log   *zap.SugaredLogger
}

func NewDigestEnqueuer(st EnqueueStore, log *zap.SugaredLogger) *DigestEnqueuer {
	return &DigestEnqueuer{store: st, log: log.Named("digest.enqueue")}
}

func (h *DigestEnqueuer) Handle(ctx context.Context, ev events.JobPosted) error {
	_, err := h.Enqueue(ctx, ev.JobID)
	return err
}

// Enqueue inserts one notification per eligible contractor and returns how
// many were new. Pairs that already exist are skipped, so delivering the
// same JobPosted twice is a no-op.
func (h *DigestEnqueuer) Enqueue(ctx context.Context, jobID string) (int, error) {
	job, err := h.store.Job(ctx, jobID)
	if err != nil {
		return 0, errors.Wrap(err, "load job")
	}

	candidates, err := h.store.CandidateProfiles(ctx, job.Trade)
	if err != nil {
		return 0, errors.Wrap(err, "load candidate contractors")
	}

	ids := make([]string, 0, len(candidates))
	for _, p := range candidates {
		if matching.Eligible(p, job) {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		h.log.Debugw("no eligible contractors", "jobId", jobID, "trade", job.Trade, "candidates", len(candidates))
		return 0, nil
	}

	inserted, err := h.store.InsertNotifications(ctx, jobID, ids)
	if err != nil {
		return 0, err
	}

	h.log.Infow("job enqueued for digest",
		"jobId", jobID, "eligible", len(ids), "inserted", inserted, "duplicates", len(ids)-inserted)
	return inserted, nil
}
