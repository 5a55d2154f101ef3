package migrations

import "github.com/evanwhite/codetrace/pkg/db"

// Migration008AddPerformanceIndexes adds indexes for the hot query paths:
// per-conversation message lookups, the deferred parent-link pass, and the
// file-scoped timeline reads.
func Migration008AddPerformanceIndexes() db.Migration {
	return db.Migration{
		Version:     8,
		Description: "Add performance indexes",
		Up: []string{
			"CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project_id, source)",
			"CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at)",
			"CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)",
			"CREATE INDEX IF NOT EXISTS idx_messages_parent_external ON messages(conversation_id, parent_external_id)",
			"CREATE INDEX IF NOT EXISTS idx_tool_uses_message ON tool_uses(message_id)",
			"CREATE INDEX IF NOT EXISTS idx_tool_results_tool_use ON tool_results(tool_use_id)",
			"CREATE INDEX IF NOT EXISTS idx_file_edits_path ON file_edits(file_path)",
			"CREATE INDEX IF NOT EXISTS idx_decisions_conversation ON decisions(conversation_id)",
			"CREATE INDEX IF NOT EXISTS idx_git_commits_project ON git_commits(project_id)",
		},
		Down: []string{
			"DROP INDEX IF EXISTS idx_git_commits_project",
			"DROP INDEX IF EXISTS idx_decisions_conversation",
			"DROP INDEX IF EXISTS idx_file_edits_path",
			"DROP INDEX IF EXISTS idx_tool_results_tool_use",
			"DROP INDEX IF EXISTS idx_tool_uses_message",
			"DROP INDEX IF EXISTS idx_messages_parent_external",
			"DROP INDEX IF EXISTS idx_messages_conversation",
			"DROP INDEX IF EXISTS idx_conversations_updated_at",
			"DROP INDEX IF EXISTS idx_conversations_project",
		},
	}
}
