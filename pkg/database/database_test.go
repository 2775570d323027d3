package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(Config{Path: filepath.Join(t.TempDir(), "data", "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew(t *testing.T) {
	t.Run("requires a path", func(t *testing.T) {
		_, err := New(Config{}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("creates parent directory", func(t *testing.T) {
		db := openTestDB(t)
		assert.NoError(t, db.Ping())
	})
}

func TestWithTransaction(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.Exec("CREATE TABLE items (name TEXT)")
	require.NoError(t, err)

	t.Run("commits on success", func(t *testing.T) {
		err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO items (name) VALUES ('kept')")
			return err
		})
		require.NoError(t, err)

		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items WHERE name = 'kept'").Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO items (name) VALUES ('lost')"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items WHERE name = 'lost'").Scan(&n))
		assert.Equal(t, 0, n)
	})
}

func TestMigrator_Run(t *testing.T) {
	ctx := context.Background()
	fsys := fstest.MapFS{
		"migrations/002_second.sql": {Data: []byte("ALTER TABLE things ADD COLUMN label TEXT;")},
		"migrations/001_first.sql":  {Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY);")},
		"migrations/README.md":      {Data: []byte("ignored")},
	}

	db := openTestDB(t)
	migrator := NewMigrator(db, zap.NewNop())

	applied, err := migrator.Run(ctx, fsys, "migrations")
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	_, err = db.Exec("INSERT INTO things (label) VALUES ('ok')")
	assert.NoError(t, err)

	applied, err = migrator.Run(ctx, fsys, "migrations")
	require.NoError(t, err)
	assert.Equal(t, 0, applied, "second run is a no-op")
}

func TestLoadMigrations(t *testing.T) {
	t.Run("sorts by version and extracts names", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/010_later.sql": {Data: []byte("SELECT 1;")},
			"m/002_early.sql": {Data: []byte("SELECT 2;")},
		}

		migrations, err := LoadMigrations(fsys, "m")
		require.NoError(t, err)
		require.Len(t, migrations, 2)
		assert.Equal(t, 2, migrations[0].Version)
		assert.Equal(t, "early", migrations[0].Name)
		assert.Equal(t, 10, migrations[1].Version)
	})

	t.Run("rejects bad filenames", func(t *testing.T) {
		fsys := fstest.MapFS{"m/first.sql": {Data: []byte("SELECT 1;")}}
		_, err := LoadMigrations(fsys, "m")
		assert.Error(t, err)
	})

	t.Run("rejects duplicate versions", func(t *testing.T) {
		fsys := fstest.MapFS{
			"m/001_a.sql": {Data: []byte("SELECT 1;")},
			"m/001_b.sql": {Data: []byte("SELECT 1;")},
		}
		_, err := LoadMigrations(fsys, "m")
		assert.Error(t, err)
	})
}
