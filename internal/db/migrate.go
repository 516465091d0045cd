package db

import (
	"context"
	"embed"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"builderpulse/notification-service/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending embedded migrations.
//
// The marketplace API owns users, jobs and contractor_profiles; these
// migrations only add what the notification service needs on top.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *zap.SugaredLogger) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(logger.GooseLogger{L: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "goose dialect")
	}

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}
