package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create widgets table",
			Up:          []string{"CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)"},
			Down:        []string{"DROP TABLE widgets"},
		},
		{
			Version:     2,
			Description: "Add color to widgets",
			Up:          []string{"ALTER TABLE widgets ADD COLUMN color TEXT"},
			Down:        []string{"ALTER TABLE widgets DROP COLUMN color"},
		},
		{
			Version:     3,
			Description: "Create gadgets table",
			Up:          []string{"CREATE TABLE gadgets (id INTEGER PRIMARY KEY)"},
			Down:        []string{"DROP TABLE gadgets"},
		},
	}
}

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyAll(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	require.NoError(t, runner.ApplyAll(ctx, testMigrations()))

	current, err := runner.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, current)

	applied, err := runner.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 3)
	for i, row := range applied {
		assert.Equal(t, i+1, row.Version)
		assert.NotEmpty(t, row.Checksum)
		assert.NotEmpty(t, row.Description)
	}

	// Re-running is a no-op.
	require.NoError(t, runner.ApplyAll(ctx, testMigrations()))
	applied, err = runner.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 3)
}

func TestPending(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	pending, err := runner.Pending(ctx, testMigrations())
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, 1, pending[0].Version)

	require.NoError(t, runner.Apply(ctx, testMigrations()[0]))

	pending, err = runner.Pending(ctx, testMigrations())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 2, pending[0].Version)
	assert.Equal(t, 3, pending[1].Version)
}

func TestApplyFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	bad := Migration{
		Version:     1,
		Description: "Partially broken",
		Up: []string{
			"CREATE TABLE widgets (id INTEGER PRIMARY KEY)",
			"THIS IS NOT SQL",
		},
	}

	require.Error(t, runner.Apply(ctx, bad))

	// Nothing from the failed migration survives.
	current, err := runner.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, current)

	var count int
	err = db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='widgets'")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestConcurrentApplyConverges(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "race.db")

	// Two handles on the same file simulate an interactive tool and a
	// background service starting at the same moment.
	dbA, err := Open(ctx, dbPath)
	require.NoError(t, err)
	defer dbA.Close()
	dbB, err := Open(ctx, dbPath)
	require.NoError(t, err)
	defer dbB.Close()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, handle := range []*sqlx.DB{dbA, dbB} {
		wg.Add(1)
		go func(i int, handle *sqlx.DB) {
			defer wg.Done()
			errs[i] = NewMigrationRunner(handle).ApplyAll(ctx, testMigrations())
		}(i, handle)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Exactly one schema_version row per version.
	runner := NewMigrationRunner(dbA)
	applied, err := runner.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 3)

	ok, err := runner.Verify(ctx, testMigrations())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRollbackTo(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	require.NoError(t, runner.ApplyAll(ctx, testMigrations()))
	require.NoError(t, runner.RollbackTo(ctx, testMigrations(), 1))

	current, err := runner.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, current)

	var count int
	err = db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='gadgets'")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// widgets survives because migration 1 stays applied.
	err = db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='widgets'")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Rolling back to the current version is a no-op.
	require.NoError(t, runner.RollbackTo(ctx, testMigrations(), 5))
}

func TestRollbackRefusesIrreversibleStep(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	migs := testMigrations()
	migs[1].Down = nil

	require.NoError(t, runner.ApplyAll(ctx, migs))

	err := runner.RollbackTo(ctx, migs, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rollback statements")

	// The refusal happens before any migration is touched: version 3 is
	// still applied and its table still exists.
	current, err := runner.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, current)

	var count int
	err = db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='gadgets'")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVerifyDetectsDrift(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	require.NoError(t, runner.ApplyAll(ctx, testMigrations()))

	ok, err := runner.Verify(ctx, testMigrations())
	require.NoError(t, err)
	assert.True(t, ok)

	// Changing the forward text of an applied migration is drift. Verify
	// reports it without erroring.
	drifted := testMigrations()
	drifted[2].Up = []string{"CREATE TABLE gadgets (id INTEGER PRIMARY KEY, extra TEXT)"}

	ok, err = runner.Verify(ctx, drifted)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyBackfillsLegacyChecksum(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	runner := NewMigrationRunner(db)

	require.NoError(t, runner.ApplyAll(ctx, testMigrations()))

	// Simulate a row written before checksums existed.
	_, err := db.Exec("UPDATE schema_version SET checksum = NULL WHERE version = 2")
	require.NoError(t, err)

	ok, err := runner.Verify(ctx, testMigrations())
	require.NoError(t, err)
	assert.True(t, ok)

	var checksum string
	require.NoError(t, db.Get(&checksum, "SELECT checksum FROM schema_version WHERE version = 2"))
	assert.Equal(t, testMigrations()[1].Checksum(), checksum)
}

func TestChecksumCoversForwardText(t *testing.T) {
	a := Migration{Version: 1, Description: "x", Up: []string{"CREATE TABLE a (id INTEGER)"}}
	b := a
	b.Up = []string{"CREATE TABLE a (id INTEGER, name TEXT)"}
	c := a
	c.Down = []string{"DROP TABLE a"}

	assert.NotEqual(t, a.Checksum(), b.Checksum())
	// Backward statements never participate in the checksum.
	assert.Equal(t, a.Checksum(), c.Checksum())
}
