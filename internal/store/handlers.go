package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"builderpulse/notification-service/internal/model"
)

// ─── Event handler queries ───────────────────────────────────────────────────

// Job loads the fields of a job used for matching and emails.
func (s *Postgres) Job(ctx context.Context, jobID string) (model.Job, error) {
	var j model.Job
	err := s.q(ctx).QueryRow(ctx,
		`SELECT id::text, client_id::text, title, trade, COALESCE(city, ''),
		        latitude, longitude, created_at
		 FROM jobs
		 WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.ClientID, &j.Title, &j.Trade, &j.City, &j.Latitude, &j.Longitude, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return j, ErrNotFound
	}
	if err != nil {
		return j, errors.Wrapf(err, "job %s", jobID)
	}
	return j, nil
}

// CandidateProfiles returns every contractor listing trade among its trades
// (case-insensitive). Area matching is left to the caller.
func (s *Postgres) CandidateProfiles(ctx context.Context, trade string) ([]model.ContractorProfile, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT id::text, user_id::text, COALESCE(trades, '{}'), COALESCE(service_city, ''),
		        latitude, longitude, COALESCE(service_radius_km, 0),
		        is_available, last_digest_sent_at
		 FROM contractor_profiles
		 WHERE EXISTS (SELECT 1 FROM unnest(trades) t WHERE lower(btrim(t)) = lower(btrim($1)))`,
		trade,
	)
	if err != nil {
		return nil, errors.Wrap(err, "candidateProfiles query")
	}
	defer rows.Close()

	profiles := make([]model.ContractorProfile, 0)
	for rows.Next() {
		var p model.ContractorProfile
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Trades, &p.ServiceCity,
			&p.Latitude, &p.Longitude, &p.ServiceRadiusKm,
			&p.IsAvailable, &p.LastDigestSentAt,
		); err != nil {
			return nil, errors.Wrap(err, "candidateProfiles scan")
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "candidateProfiles rows")
	}
	return profiles, nil
}

// InsertNotifications creates one pending notification per contractor for
// jobID. Pairs that already exist are left untouched. It returns the number
// of rows actually inserted.
func (s *Postgres) InsertNotifications(ctx context.Context, jobID string, contractorIDs []string) (int, error) {
	if len(contractorIDs) == 0 {
		return 0, nil
	}
	tag, err := s.q(ctx).Exec(ctx,
		`INSERT INTO contractor_job_notifications (contractor_id, job_id)
		 SELECT c::uuid, $2 FROM unnest($1::text[]) AS c
		 ON CONFLICT (contractor_id, job_id) DO NOTHING`,
		contractorIDs, jobID,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "insertNotifications job %s", jobID)
	}
	return int(tag.RowsAffected()), nil
}

// InsertActivity appends an activity_log row. A second insert for the same
// event id is ignored.
func (s *Postgres) InsertActivity(ctx context.Context, rec model.ActivityRecord) error {
	payload := rec.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.q(ctx).Exec(ctx,
		`INSERT INTO activity_log (event_id, kind, actor_id, job_id, payload, occurred_at)
		 VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5::jsonb, $6)
		 ON CONFLICT (event_id) DO NOTHING`,
		rec.EventID, rec.Kind, rec.ActorID, rec.JobID, string(payload), rec.OccurredAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insertActivity %s", rec.EventID)
	}
	return nil
}

// UserRecipient resolves a user by id. Email is empty when none is on file.
func (s *Postgres) UserRecipient(ctx context.Context, userID string) (model.Recipient, error) {
	var r model.Recipient
	err := s.q(ctx).QueryRow(ctx,
		`SELECT id::text, COALESCE(display_name, ''), COALESCE(TRIM(email), '')
		 FROM users
		 WHERE id = $1`,
		userID,
	).Scan(&r.UserID, &r.Name, &r.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, errors.Wrapf(err, "userRecipient %s", userID)
	}
	return r, nil
}
