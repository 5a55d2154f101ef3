package migrations

import "github.com/evanwhite/codetrace/pkg/db"

// Migration003CreateToolTables creates tool_uses and tool_results.
func Migration003CreateToolTables() db.Migration {
	return db.Migration{
		Version:     3,
		Description: "Create tool_uses and tool_results tables",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS tool_uses (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				name TEXT NOT NULL,
				input TEXT,
				timestamp DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(message_id, external_id)
			)`, `
			CREATE TABLE IF NOT EXISTS tool_results (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				tool_use_id INTEGER NOT NULL REFERENCES tool_uses(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				content TEXT,
				is_error INTEGER NOT NULL DEFAULT 0,
				timestamp DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(tool_use_id, external_id)
			)`,
		},
		Down: []string{
			"DROP TABLE IF EXISTS tool_results",
			"DROP TABLE IF EXISTS tool_uses",
		},
	}
}
