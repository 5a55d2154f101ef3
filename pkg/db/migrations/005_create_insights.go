package migrations

import "github.com/evanwhite/codetrace/pkg/db"

// Migration005CreateInsights creates the extracted-insight tables: decisions,
// mistakes, requirements and validations. List-shaped fields (alternatives,
// files) are stored as JSON text and decoded on read.
func Migration005CreateInsights() db.Migration {
	return db.Migration{
		Version:     5,
		Description: "Create decisions, mistakes, requirements and validations tables",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS decisions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				decision TEXT NOT NULL,
				rationale TEXT,
				alternatives TEXT,
				files TEXT,
				timestamp DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(conversation_id, external_id)
			)`, `
			CREATE TABLE IF NOT EXISTS mistakes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				description TEXT NOT NULL,
				correction TEXT,
				files TEXT,
				timestamp DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(conversation_id, external_id)
			)`, `
			CREATE TABLE IF NOT EXISTS requirements (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				requirement TEXT NOT NULL,
				status TEXT,
				files TEXT,
				timestamp DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(conversation_id, external_id)
			)`, `
			CREATE TABLE IF NOT EXISTS validations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				status TEXT NOT NULL,
				command TEXT,
				output TEXT,
				timestamp DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(conversation_id, external_id)
			)`,
		},
		Down: []string{
			"DROP TABLE IF EXISTS validations",
			"DROP TABLE IF EXISTS requirements",
			"DROP TABLE IF EXISTS mistakes",
			"DROP TABLE IF EXISTS decisions",
		},
	}
}
