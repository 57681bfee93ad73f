// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"netmon-auth/internal/config"
	"netmon-auth/internal/database"
)

// SQLite returns a migrated in-memory sqlite database private to t.
func SQLite(t testing.TB) *database.DB {
	t.Helper()

	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	db, err := database.New(context.Background(), database.Options{
		Driver:   config.DriverSQLite,
		URL:      fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name),
		MaxConns: 4,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}
