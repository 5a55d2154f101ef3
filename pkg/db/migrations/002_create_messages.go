package migrations

import "github.com/evanwhite/codetrace/pkg/db"

// Migration002CreateMessages creates the messages table. parent_external_id
// holds the producer-assigned parent reference; parent_id is filled by the
// ingestion layer's deferred second pass because a child can arrive before
// its parent within one batch.
func Migration002CreateMessages() db.Migration {
	return db.Migration{
		Version:     2,
		Description: "Create messages table",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				external_id TEXT NOT NULL,
				parent_external_id TEXT,
				parent_id INTEGER,
				type TEXT NOT NULL,
				role TEXT,
				content TEXT,
				timestamp DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(conversation_id, external_id)
			)`,
		},
		Down: []string{
			"DROP TABLE IF EXISTS messages",
		},
	}
}
