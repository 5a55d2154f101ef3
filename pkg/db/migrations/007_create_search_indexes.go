package migrations

import "github.com/evanwhite/codetrace/pkg/db"

// Migration007CreateSearchIndexes creates external-content FTS5 indexes over
// message content and decision text. There are deliberately no sync
// triggers: bulk ingestion rebuilds each index once per batch instead of
// paying per-row trigger cost.
func Migration007CreateSearchIndexes() db.Migration {
	return db.Migration{
		Version:     7,
		Description: "Create full-text search indexes",
		Up: []string{`
			CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
				content,
				content=messages,
				content_rowid=id,
				tokenize='porter unicode61'
			)`, `
			CREATE VIRTUAL TABLE IF NOT EXISTS decisions_fts USING fts5(
				decision,
				rationale,
				content=decisions,
				content_rowid=id,
				tokenize='porter unicode61'
			)`,
		},
		Down: []string{
			"DROP TABLE IF EXISTS decisions_fts",
			"DROP TABLE IF EXISTS messages_fts",
		},
	}
}
