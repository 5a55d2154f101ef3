package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanwhite/codetrace/pkg/registry"
	"github.com/evanwhite/codetrace/pkg/types/entities"
)

func TestGetStatsCountsEveryEntity(t *testing.T) {
	ctx := context.Background()
	s, project := newTestStore(t)

	convIDs := seedConversation(t, s, project, "sess-1")
	msgRes, err := s.IngestMessages(ctx, convIDs, []entities.MessageRecord{
		{SessionID: "sess-1", ExternalID: "m1", Type: "message"},
		{SessionID: "sess-1", ExternalID: "m2", Type: "message"},
	})
	require.NoError(t, err)

	toolRes, err := s.IngestToolUses(ctx, msgRes.IDMap, []entities.ToolUseRecord{
		{MessageExternalID: "m1", ExternalID: "t1", Name: "bash"},
	})
	require.NoError(t, err)
	_, err = s.IngestToolResults(ctx, toolRes.IDMap, []entities.ToolResultRecord{
		{ToolUseExternalID: "t1", ExternalID: "r1", Content: "done"},
	})
	require.NoError(t, err)
	_, err = s.IngestThinkingBlocks(ctx, msgRes.IDMap, []entities.ThinkingBlockRecord{
		{MessageExternalID: "m2", ExternalID: "tb1", Content: "considering options"},
	})
	require.NoError(t, err)
	_, err = s.IngestMistakes(ctx, convIDs, []entities.MistakeRecord{
		{SessionID: "sess-1", ExternalID: "k1", Description: "wrong flag", Correction: "use -race"},
	})
	require.NoError(t, err)
	_, err = s.IngestRequirements(ctx, convIDs, []entities.RequirementRecord{
		{SessionID: "sess-1", ExternalID: "q1", Requirement: "tests must pass", Status: "done"},
	})
	require.NoError(t, err)
	_, err = s.IngestValidations(ctx, convIDs, []entities.ValidationRecord{
		{SessionID: "sess-1", ExternalID: "v1", Status: "passed", Command: "go test ./..."},
	})
	require.NoError(t, err)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Conversations)
	assert.Equal(t, int64(2), stats.Messages)
	assert.Equal(t, int64(1), stats.ToolUses)
	assert.Equal(t, int64(1), stats.ToolResults)
	assert.Equal(t, int64(1), stats.ThinkingBlocks)
	assert.Equal(t, int64(1), stats.Mistakes)
	assert.Equal(t, int64(1), stats.Requirements)
	assert.Equal(t, int64(1), stats.Validations)
	assert.Zero(t, stats.FileEdits)
	assert.Zero(t, stats.Commits)
}

func TestGetStatsForProjectIsScoped(t *testing.T) {
	ctx := context.Background()
	s, project := newTestStore(t)

	// A second project sharing the same store.
	other := t.TempDir()
	reg := registryOf(t, s)
	_, err := reg.Register(ctx, registry.RegisterInput{Path: other, Source: "codex"})
	require.NoError(t, err)

	seedConversation(t, s, project, "sess-a")
	_, err = s.IngestConversations(ctx, other, "codex", []entities.ConversationRecord{
		{SessionID: "sess-b"},
		{SessionID: "sess-c"},
	})
	require.NoError(t, err)

	mine, err := s.GetStatsForProject(ctx, project, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Conversations)

	theirs, err := s.GetStatsForProject(ctx, other, "codex")
	require.NoError(t, err)
	assert.Equal(t, int64(2), theirs.Conversations)

	// Wrong source yields zero, not an error.
	none, err := s.GetStatsForProject(ctx, other, "claude")
	require.NoError(t, err)
	assert.Zero(t, none.Conversations)

	all, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Conversations)
}

// registryOf digs the registry back out of the store for tests that need to
// register a second project.
func registryOf(t *testing.T, s *Store) *registry.Registry {
	t.Helper()
	require.NotNil(t, s.reg)
	return s.reg
}
