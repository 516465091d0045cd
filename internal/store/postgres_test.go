package store_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/db"
	"builderpulse/notification-service/internal/digest"
	"builderpulse/notification-service/internal/handlers"
	"builderpulse/notification-service/internal/model"
	"builderpulse/notification-service/internal/store"
)

var (
	_ digest.Store   = (*store.Postgres)(nil)
	_ handlers.Store = (*store.Postgres)(nil)
)

// Tables owned by the marketplace API, reduced to the columns read here.
const marketplaceSchema = `
CREATE TABLE users (
    id           uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    email        text,
    display_name text
);
CREATE TABLE jobs (
    id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    client_id  uuid NOT NULL REFERENCES users (id),
    title      text NOT NULL,
    trade      text NOT NULL,
    city       text,
    latitude   double precision,
    longitude  double precision,
    created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE contractor_profiles (
    id                uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id           uuid NOT NULL REFERENCES users (id),
    trades            text[] NOT NULL DEFAULT '{}',
    service_city      text,
    latitude          double precision,
    longitude         double precision,
    service_radius_km double precision
);`

// testPool connects to NOTIFY_TEST_DATABASE_URL and isolates the test in a
// fresh schema. The test is skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("NOTIFY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("NOTIFY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := db.NewPostgresPool(ctx, url)
	require.NoError(t, err)
	schema := "notify_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, marketplaceSchema)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, pool, zap.NewNop().Sugar()))
	return pool
}

type fixture struct {
	pool *pgxpool.Pool
	st   *store.Postgres
}

func (f fixture) user(t *testing.T, email string) string {
	t.Helper()
	var id string
	require.NoError(t, f.pool.QueryRow(context.Background(),
		`INSERT INTO users (email, display_name) VALUES (NULLIF($1, ''), 'Test User') RETURNING id::text`,
		email).Scan(&id))
	return id
}

func (f fixture) contractor(t *testing.T, userID, city string, trades ...string) string {
	t.Helper()
	var id string
	require.NoError(t, f.pool.QueryRow(context.Background(),
		`INSERT INTO contractor_profiles (user_id, trades, service_city) VALUES ($1, $2, $3) RETURNING id::text`,
		userID, trades, city).Scan(&id))
	return id
}

func (f fixture) job(t *testing.T, clientID, title, trade string, createdAt time.Time) string {
	t.Helper()
	var id string
	require.NoError(t, f.pool.QueryRow(context.Background(),
		`INSERT INTO jobs (client_id, title, trade, city, created_at) VALUES ($1, $2, $3, 'Leeds', $4) RETURNING id::text`,
		clientID, title, trade, createdAt).Scan(&id))
	return id
}

func newFixture(t *testing.T) fixture {
	pool := testPool(t)
	return fixture{pool: pool, st: store.New(pool)}
}

func TestInsertNotifications_UniquePerContractorAndJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.user(t, "client@example.com")
	c1 := f.contractor(t, f.user(t, "c1@example.com"), "Leeds", "Plumbing")
	c2 := f.contractor(t, f.user(t, "c2@example.com"), "Leeds", "Plumbing")
	job := f.job(t, client, "Pipe fix", "Plumbing", time.Now())

	n, err := f.st.InsertNotifications(ctx, job, []string{c1, c2})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.st.InsertNotifications(ctx, job, []string{c1, c2})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-delivery must not create duplicates")

	ids, err := f.st.PendingContractorIDs(ctx, 200)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{c1, c2}, ids)
}

func TestPendingBatch_NewestJobFirstAndCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.user(t, "client@example.com")
	c := f.contractor(t, f.user(t, "c@example.com"), "Leeds", "Roofing", "Carpentry", "Plumbing")
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	jobs := []string{
		f.job(t, client, "Roof repair", "Roofing", base),
		f.job(t, client, "Deck build", "Carpentry", base.Add(time.Hour)),
		f.job(t, client, "Pipe fix", "Plumbing", base.Add(2*time.Hour)),
	}
	for _, j := range jobs {
		_, err := f.st.InsertNotifications(ctx, j, []string{c})
		require.NoError(t, err)
	}

	batch, err := f.st.PendingBatch(ctx, c, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "Pipe fix", batch[0].Title)
	assert.Equal(t, "Plumbing", batch[0].Trade)
	assert.Equal(t, "Deck build", batch[1].Title)
}

func TestMarkSent_SetsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	client := f.user(t, "client@example.com")
	c := f.contractor(t, f.user(t, "c@example.com"), "Leeds", "Plumbing")
	job := f.job(t, client, "Pipe fix", "Plumbing", time.Now())
	_, err := f.st.InsertNotifications(ctx, job, []string{c})
	require.NoError(t, err)

	batch, err := f.st.PendingBatch(ctx, c, 25)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	first := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	n, err := f.st.MarkSent(ctx, []string{batch[0].NotificationID}, first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.st.MarkSent(ctx, []string{batch[0].NotificationID}, first.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := f.st.Notification(ctx, c, job)
	require.NoError(t, err)
	assert.False(t, got.Pending())
	assert.True(t, got.SentAt.Equal(first), "sent_at is set exactly once")

	ids, err := f.st.PendingContractorIDs(ctx, 200)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = f.st.Notification(ctx, c, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProfileAndRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.contractor(t, f.user(t, ""), "York", "Electrical")

	p, err := f.st.Profile(ctx, c)
	require.NoError(t, err)
	assert.True(t, p.IsAvailable)
	assert.Nil(t, p.LastDigestSentAt)
	assert.Equal(t, []string{"Electrical"}, p.Trades)

	r, err := f.st.ContractorRecipient(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, r.Email)

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.st.SetLastDigestSent(ctx, c, at))
	p, err = f.st.Profile(ctx, c)
	require.NoError(t, err)
	require.NotNil(t, p.LastDigestSentAt)
	assert.True(t, p.LastDigestSentAt.Equal(at))

	_, err = f.st.Profile(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCandidateProfiles_TradeCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plumber := f.contractor(t, f.user(t, "p@example.com"), "Leeds", "plumbing")
	f.contractor(t, f.user(t, "r@example.com"), "Leeds", "Roofing")

	got, err := f.st.CandidateProfiles(ctx, "Plumbing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, plumber, got[0].ID)
}

// Padding in stored trades is ignored, matching the Go-side trade check.
func TestCandidateProfiles_TradeIgnoresPadding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roofer := f.contractor(t, f.user(t, "r@example.com"), "Leeds", " Roofing ")

	got, err := f.st.CandidateProfiles(ctx, "roofing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, roofer, got[0].ID)
}

func TestInsertActivity_JoinsTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := model.ActivityRecord{
		EventID:    uuid.NewString(),
		Kind:       "job.posted",
		Payload:    []byte(`{"jobId":"x"}`),
		OccurredAt: time.Now().UTC(),
	}

	err := db.InTx(ctx, f.pool, func(ctx context.Context) error {
		require.NoError(t, f.st.InsertActivity(ctx, rec))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var n int
	require.NoError(t, f.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_log`).Scan(&n))
	assert.Zero(t, n, "rolled back insert must not be visible")

	require.NoError(t, f.st.InsertActivity(ctx, rec))
	require.NoError(t, f.st.InsertActivity(ctx, rec))
	require.NoError(t, f.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_log`).Scan(&n))
	assert.Equal(t, 1, n)
}
