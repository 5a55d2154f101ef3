// Package migrations contains all main-store schema migrations for
// codetrace. Versions are small sequential integers; new migrations are
// appended to All.
package migrations

import (
	"github.com/evanwhite/codetrace/pkg/db"
)

// All returns every registered migration in apply order.
func All() []db.Migration {
	return []db.Migration{
		Migration001CreateConversations(),
		Migration002CreateMessages(),
		Migration003CreateToolTables(),
		Migration004CreateFileActivity(),
		Migration005CreateInsights(),
		Migration006CreateGitCommits(),
		Migration007CreateSearchIndexes(),
		Migration008AddPerformanceIndexes(),
	}
}
