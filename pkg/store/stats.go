package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/evanwhite/codetrace/pkg/cache"
)

// GetStats returns row counts per entity type across the whole store.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	key := cache.StatsKey("global")
	if v, ok := s.cache.Get(key); ok {
		return v.(*Stats), nil
	}

	stats := &Stats{}
	counts := map[string]*int64{
		"conversations":   &stats.Conversations,
		"messages":        &stats.Messages,
		"tool_uses":       &stats.ToolUses,
		"tool_results":    &stats.ToolResults,
		"file_edits":      &stats.FileEdits,
		"thinking_blocks": &stats.ThinkingBlocks,
		"decisions":       &stats.Decisions,
		"mistakes":        &stats.Mistakes,
		"requirements":    &stats.Requirements,
		"validations":     &stats.Validations,
		"git_commits":     &stats.Commits,
	}

	for table, dest := range counts {
		if err := s.db.GetContext(ctx, dest, "SELECT COUNT(*) FROM "+table); err != nil {
			return nil, errors.Wrapf(err, "failed to count %s", table)
		}
	}

	s.cache.Set(key, stats)
	return stats, nil
}

// GetStatsForProject returns row counts per entity type for one project,
// optionally narrowed to a source ecosystem.
func (s *Store) GetStatsForProject(ctx context.Context, projectPath, source string) (*Stats, error) {
	key := cache.StatsKey(projectPath + ":" + source)
	if v, ok := s.cache.Get(key); ok {
		return v.(*Stats), nil
	}

	projectID, err := s.resolveProjectID(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	convFilter := "c.project_id = ?"
	args := []any{projectID}
	if source != "" {
		convFilter += " AND c.source = ?"
		args = append(args, source)
	}

	stats := &Stats{}
	queries := []struct {
		dest  *int64
		query string
	}{
		{&stats.Conversations, "SELECT COUNT(*) FROM conversations c WHERE " + convFilter},
		{&stats.Messages, `SELECT COUNT(*) FROM messages m
			JOIN conversations c ON c.id = m.conversation_id WHERE ` + convFilter},
		{&stats.ToolUses, `SELECT COUNT(*) FROM tool_uses t
			JOIN messages m ON m.id = t.message_id
			JOIN conversations c ON c.id = m.conversation_id WHERE ` + convFilter},
		{&stats.ToolResults, `SELECT COUNT(*) FROM tool_results r
			JOIN tool_uses t ON t.id = r.tool_use_id
			JOIN messages m ON m.id = t.message_id
			JOIN conversations c ON c.id = m.conversation_id WHERE ` + convFilter},
		{&stats.FileEdits, `SELECT COUNT(*) FROM file_edits e
			JOIN messages m ON m.id = e.message_id
			JOIN conversations c ON c.id = m.conversation_id WHERE ` + convFilter},
		{&stats.ThinkingBlocks, `SELECT COUNT(*) FROM thinking_blocks b
			JOIN messages m ON m.id = b.message_id
			JOIN conversations c ON c.id = m.conversation_id WHERE ` + convFilter},
		{&stats.Decisions, `SELECT COUNT(*) FROM decisions d
			JOIN conversations c ON c.id = d.conversation_id WHERE ` + convFilter},
		{&stats.Mistakes, `SELECT COUNT(*) FROM mistakes k
			JOIN conversations c ON c.id = k.conversation_id WHERE ` + convFilter},
		{&stats.Requirements, `SELECT COUNT(*) FROM requirements q
			JOIN conversations c ON c.id = q.conversation_id WHERE ` + convFilter},
		{&stats.Validations, `SELECT COUNT(*) FROM validations v
			JOIN conversations c ON c.id = v.conversation_id WHERE ` + convFilter},
	}

	for _, q := range queries {
		if err := s.db.GetContext(ctx, q.dest, q.query, args...); err != nil {
			return nil, errors.Wrap(err, "failed to count project entities")
		}
	}

	if err := s.db.GetContext(ctx, &stats.Commits,
		"SELECT COUNT(*) FROM git_commits WHERE project_id = ?", projectID); err != nil {
		return nil, errors.Wrap(err, "failed to count project commits")
	}

	s.cache.Set(key, stats)
	return stats, nil
}
