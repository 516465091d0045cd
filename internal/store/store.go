// Package store is the Postgres data access layer for the notification
// service. Every query goes through db.Conn so that calls made inside
// db.InTx join the caller's transaction.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"builderpulse/notification-service/internal/db"
	"builderpulse/notification-service/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Postgres implements the digest and handler stores on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// New returns a Postgres store.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) q(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

// ─── Digest queries ──────────────────────────────────────────────────────────

// PendingContractorIDs returns up to limit distinct contractors that have at
// least one unsent notification, oldest pending row first.
func (s *Postgres) PendingContractorIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT contractor_id::text
		 FROM contractor_job_notifications
		 WHERE sent_at IS NULL
		 GROUP BY contractor_id
		 ORDER BY MIN(created_at)
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "pendingContractorIDs query")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "pendingContractorIDs scan")
	}
	return ids, nil
}

// Profile loads a contractor profile by id.
func (s *Postgres) Profile(ctx context.Context, contractorID string) (model.ContractorProfile, error) {
	var p model.ContractorProfile
	err := s.q(ctx).QueryRow(ctx,
		`SELECT id::text, user_id::text, COALESCE(trades, '{}'), COALESCE(service_city, ''),
		        latitude, longitude, COALESCE(service_radius_km, 0),
		        is_available, last_digest_sent_at
		 FROM contractor_profiles
		 WHERE id = $1`,
		contractorID,
	).Scan(
		&p.ID, &p.UserID, &p.Trades, &p.ServiceCity,
		&p.Latitude, &p.Longitude, &p.ServiceRadiusKm,
		&p.IsAvailable, &p.LastDigestSentAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, errors.Wrapf(err, "profile %s", contractorID)
	}
	return p, nil
}

// PendingBatch returns up to limit unsent notifications for one contractor,
// joined with the job fields shown in the digest, newest job first.
func (s *Postgres) PendingBatch(ctx context.Context, contractorID string, limit int) ([]model.PendingJob, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT n.id::text, j.id::text, j.title, j.trade, j.created_at
		 FROM contractor_job_notifications n
		 JOIN jobs j ON j.id = n.job_id
		 WHERE n.contractor_id = $1 AND n.sent_at IS NULL
		 ORDER BY j.created_at DESC, n.id
		 LIMIT $2`,
		contractorID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "pendingBatch query")
	}
	defer rows.Close()

	batch := make([]model.PendingJob, 0, limit)
	for rows.Next() {
		var p model.PendingJob
		if err := rows.Scan(&p.NotificationID, &p.JobID, &p.Title, &p.Trade, &p.JobCreatedAt); err != nil {
			return nil, errors.Wrap(err, "pendingBatch scan")
		}
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "pendingBatch rows")
	}
	return batch, nil
}

// ContractorRecipient resolves the user behind a contractor profile. Email
// is empty when the user has none on file.
func (s *Postgres) ContractorRecipient(ctx context.Context, contractorID string) (model.Recipient, error) {
	var r model.Recipient
	err := s.q(ctx).QueryRow(ctx,
		`SELECT u.id::text, COALESCE(u.display_name, ''), COALESCE(TRIM(u.email), '')
		 FROM contractor_profiles cp
		 JOIN users u ON u.id = cp.user_id
		 WHERE cp.id = $1`,
		contractorID,
	).Scan(&r.UserID, &r.Name, &r.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, errors.Wrapf(err, "contractorRecipient %s", contractorID)
	}
	return r, nil
}

// SetLastDigestSent stamps the contractor's last digest time.
func (s *Postgres) SetLastDigestSent(ctx context.Context, contractorID string, at time.Time) error {
	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE contractor_profiles SET last_digest_sent_at = $1 WHERE id = $2`,
		at, contractorID,
	)
	if err != nil {
		return errors.Wrapf(err, "setLastDigestSent %s", contractorID)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Notification loads the notification for one (contractor, job) pair.
func (s *Postgres) Notification(ctx context.Context, contractorID, jobID string) (model.ContractorJobNotification, error) {
	var n model.ContractorJobNotification
	err := s.q(ctx).QueryRow(ctx,
		`SELECT id::text, contractor_id::text, job_id::text, created_at, sent_at
		 FROM contractor_job_notifications
		 WHERE contractor_id = $1 AND job_id = $2`,
		contractorID, jobID,
	).Scan(&n.ID, &n.ContractorID, &n.JobID, &n.CreatedAt, &n.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return n, ErrNotFound
	}
	if err != nil {
		return n, errors.Wrap(err, "notification")
	}
	return n, nil
}

// MarkSent sets sent_at on the given notifications. Rows already sent keep
// their original timestamp. It returns the number of rows updated.
func (s *Postgres) MarkSent(ctx context.Context, notificationIDs []string, at time.Time) (int, error) {
	if len(notificationIDs) == 0 {
		return 0, nil
	}
	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE contractor_job_notifications
		 SET sent_at = $1
		 WHERE id = ANY($2::text[]::uuid[]) AND sent_at IS NULL`,
		at, notificationIDs,
	)
	if err != nil {
		return 0, errors.Wrap(err, "markSent")
	}
	return int(tag.RowsAffected()), nil
}
