package postgres

import (
	"context"

	"ideaboard/internal/errors"
	"ideaboard/internal/infra/persistence/migrations"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// Migrate applies every pending embedded migration through the gorm connection pool.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return RunMigrations(ctx, db, "up")
}

// RunMigrations runs a goose command (up, down, redo, status, version, reset)
// against the embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB, command string, args ...string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get PostgreSQL sql.DB")
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}

	if err := goose.RunContext(ctx, command, sqlDB, ".", args...); err != nil {
		return errors.Wrapf(err, "run migration command %q", command)
	}

	return nil
}
