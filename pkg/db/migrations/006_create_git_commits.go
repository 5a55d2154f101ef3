package migrations

import "github.com/evanwhite/codetrace/pkg/db"

// Migration006CreateGitCommits creates the git_commits table. Commits are
// unique per (project, hash) and optionally link back to the conversation or
// message they were extracted from.
func Migration006CreateGitCommits() db.Migration {
	return db.Migration{
		Version:     6,
		Description: "Create git_commits table",
		Up: []string{`
			CREATE TABLE IF NOT EXISTS git_commits (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				project_id INTEGER NOT NULL,
				commit_hash TEXT NOT NULL,
				conversation_id INTEGER REFERENCES conversations(id) ON DELETE SET NULL,
				message_id INTEGER REFERENCES messages(id) ON DELETE SET NULL,
				author TEXT,
				message TEXT,
				files TEXT,
				committed_at DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE(project_id, commit_hash)
			)`,
		},
		Down: []string{
			"DROP TABLE IF EXISTS git_commits",
		},
	}
}
