package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	"netmon-auth/internal/config"
)

//go:embed migrations
var migrationsFS embed.FS

var dialects = map[string]goose.Dialect{
	config.DriverPostgres: goose.DialectPostgres,
	config.DriverMySQL:    goose.DialectMySQL,
	config.DriverSQLite:   goose.DialectSQLite3,
}

// EnsureSchema applies any pending migrations for the driver. Safe to run on
// every startup.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.SQL == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	dialect, ok := dialects[db.Driver]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", db.Driver)
	}

	fsys, err := fs.Sub(migrationsFS, "migrations/"+db.Driver)
	if err != nil {
		return fmt.Errorf("open %s migrations: %w", db.Driver, err)
	}

	provider, err := goose.NewProvider(dialect, db.SQL, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, r := range results {
		slog.Info("migration applied", "version", r.Source.Version, "file", r.Source.Path, "duration", r.Duration)
	}

	slog.Info("database schema ensured", "driver", db.Driver, "applied", len(results))
	return nil
}
