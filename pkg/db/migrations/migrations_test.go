package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanwhite/codetrace/pkg/db"
)

func TestAllAppliesCleanly(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := db.Open(ctx, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	runner := db.NewMigrationRunner(sqlDB)
	require.NoError(t, runner.ApplyAll(ctx, All()))

	tables := []string{
		"conversations", "messages", "tool_uses", "tool_results",
		"file_edits", "thinking_blocks", "decisions", "mistakes",
		"requirements", "validations", "git_commits",
		"messages_fts", "decisions_fts",
	}
	for _, table := range tables {
		var count int
		err := sqlDB.Get(&count,
			"SELECT COUNT(*) FROM sqlite_master WHERE name = ?", table)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "missing table %s", table)
	}

	ok, err := runner.Verify(ctx, All())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllVersionsAreSequential(t *testing.T) {
	for i, m := range All() {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.Up)
		assert.NotEmpty(t, m.Down, "migration %d must be reversible", m.Version)
	}
}

func TestFullRollback(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := db.Open(ctx, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer sqlDB.Close()

	runner := db.NewMigrationRunner(sqlDB)
	require.NoError(t, runner.ApplyAll(ctx, All()))
	require.NoError(t, runner.RollbackTo(ctx, All(), 0))

	current, err := runner.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, current)

	var count int
	err = sqlDB.Get(&count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='conversations'")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
