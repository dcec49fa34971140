package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"climbs/api/internal/record"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteTriggersBlockRowMutation(t *testing.T) {
	ctx := context.Background()
	s := sqliteFactory(t, nil).(*SQLStore)
	db := s.DB()

	row, err := s.InsertClimb(ctx, record.Climb{Name: "La Dura Dura", Type: record.ClimbSport, Grade: "9b+"})
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE climbs SET grade='9c' WHERE hash=?`, row.Hash)
	require.Error(t, err, "attribute updates must be rejected")

	_, err = db.ExecContext(ctx, `DELETE FROM climbs WHERE hash=?`, row.Hash)
	require.Error(t, err, "deletes must be rejected")

	_, err = s.SetStatus(ctx, record.KindClimb, row.Hash, record.StatusRejected)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE climbs SET status='valid' WHERE hash=?`, row.Hash)
	require.Error(t, err, "terminal rows must not change status")

	_, err = db.ExecContext(ctx, `UPDATE record_transitions SET to_status='valid'`)
	require.Error(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM record_transitions`)
	require.Error(t, err)

	items, err := s.Climbs(ctx, record.Filter{Hash: row.Hash})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "9b+", items[0].Grade)
	assert.Equal(t, record.StatusRejected, items[0].Status)
}

func TestSQLiteMigrationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	dir := MigrationsPath(migrationsRoot, DialectSQLite)
	require.NoError(t, ApplyMigrations(ctx, db, DialectSQLite, dir))
	require.NoError(t, ApplyMigrations(ctx, db, DialectSQLite, dir), "re-applying is a no-op")
	require.NoError(t, applyDownMigrations(ctx, db, dir))

	_, err = db.ExecContext(ctx, `DELETE FROM schema_migrations`)
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, db, DialectSQLite, dir))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 3, count)
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	runStoreContract(t, func(t *testing.T, now func() time.Time) Store {
		db := openPostgres(t, dsn)
		s := NewSQLStore(db, DialectPostgres)
		if now != nil {
			s.WithClock(now)
		}
		return s
	})
}

func TestPostgresTriggersBlockRowMutation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	db := openPostgres(t, dsn)
	s := NewSQLStore(db, DialectPostgres)

	row, err := s.InsertAthlete(ctx, record.Athlete{Name: "Chris Sharma"})
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE athletes SET nationality='USA' WHERE hash=$1`, row.Hash)
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr), "expected PostgreSQL error, got: %v", err)
	assert.Equal(t, "55000", pgErr.SQLState())

	_, err = db.ExecContext(ctx, `DELETE FROM athletes WHERE hash=$1`, row.Hash)
	require.True(t, errors.As(err, &pgErr), "expected PostgreSQL error, got: %v", err)
	assert.Equal(t, "55000", pgErr.SQLState())
	assert.Equal(t, "athletes is append-only; DELETE is not allowed", pgErr.Message)
}

func openPostgres(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, DialectPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, db, DialectPostgres, MigrationsPath(migrationsRoot, DialectPostgres)))
	return db
}

func applyDownMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	var downs []string
	for _, entry := range entries {
		if !entry.IsDir() && pattern.MatchString(entry.Name()) {
			downs = append(downs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))

	for _, name := range downs {
		sqlBytes, err := os.ReadFile(migrationsDir + string(os.PathSeparator) + name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return err
		}
	}
	return nil
}
