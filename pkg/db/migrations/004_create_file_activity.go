package migrations

import "github.com/evanwhite/codetrace/pkg/db"

// Migration004CreateFileActivity creates file_edits and thinking_blocks.
func Migration004CreateFileActivity() db.Migration {
	return db.Migration{
		Version:     4,
		Description: "Create file_edits and thinking_blocks tables",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS file_edits (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				file_path TEXT NOT NULL,
				operation TEXT NOT NULL,
				diff TEXT,
				timestamp DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(message_id, external_id)
			)`, `
			CREATE TABLE IF NOT EXISTS thinking_blocks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				content TEXT,
				timestamp DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(message_id, external_id)
			)`,
		},
		Down: []string{
			"DROP TABLE IF EXISTS thinking_blocks",
			"DROP TABLE IF EXISTS file_edits",
		},
	}
}
