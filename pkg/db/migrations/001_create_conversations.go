package migrations

import "github.com/evanwhite/codetrace/pkg/db"

// Migration001CreateConversations creates the conversations table. Every
// conversation is unique per (project, source, session id) so re-ingesting
// the same source log upserts instead of duplicating.
func Migration001CreateConversations() db.Migration {
	return db.Migration{
		Version:     1,
		Description: "Create conversations table",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS conversations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				project_id INTEGER NOT NULL,
				source TEXT NOT NULL,
				session_id TEXT NOT NULL,
				first_message_at DATETIME,
				last_message_at DATETIME,
				message_count INTEGER NOT NULL DEFAULT 0,
				git_branch TEXT,
				app_version TEXT,
				metadata TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(project_id, source, session_id)
			)`,
		},
		Down: []string{
			"DROP TABLE IF EXISTS conversations",
		},
	}
}
