package migrate_test

import (
	"context"
	"database/sql"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/migrate"
)

func sqliteHandle(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	handle, err := conn.DB()
	require.NoError(t, err)
	handle.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = handle.Close() })
	return handle
}

func depotMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101000000_depots.sql": {Data: []byte(
			"-- +goose Up\nCREATE TABLE depots (id INTEGER PRIMARY KEY, city TEXT NOT NULL);\n" +
				"-- +goose Down\nDROP TABLE depots;\n")},
		"20260101000100_depot_code.sql": {Data: []byte(
			"-- +goose Up\nALTER TABLE depots ADD COLUMN code TEXT;\n" +
				"-- +goose Down\nALTER TABLE depots DROP COLUMN code;\n")},
	}
}

func TestMigratorWalksVersions(t *testing.T) {
	ctx := context.Background()
	m, err := migrate.New(sqliteHandle(t), "sqlite3", depotMigrations())
	require.NoError(t, err)

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{20260101000000, 20260101000100}, pending)

	applied, err := m.To(ctx, 20260101000000)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.Equal(t, "up", applied[0].Direction)

	applied, err = m.Up(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.EqualValues(t, 20260101000100, applied[0].Version)

	current, err := m.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 20260101000100, current)

	rolled, err := m.Down(ctx)
	require.NoError(t, err)
	require.Len(t, rolled, 1)
	require.Equal(t, "down", rolled[0].Direction)

	current, err = m.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 20260101000000, current)

	unchanged, err := m.To(ctx, current)
	require.NoError(t, err)
	require.Empty(t, unchanged)
}

func TestBundledSourceMatchesDirectory(t *testing.T) {
	source, err := migrate.Source("")
	require.NoError(t, err)
	bundled, err := fs.Glob(source, "*.sql")
	require.NoError(t, err)

	onDisk, err := migrate.List("migrations")
	require.NoError(t, err)
	require.Len(t, bundled, len(onDisk))
	for i, f := range onDisk {
		require.Contains(t, f.Path, bundled[i])
	}
}

func TestNewRequiresHandle(t *testing.T) {
	_, err := migrate.New(nil, "", depotMigrations())
	require.Error(t, err)
}
