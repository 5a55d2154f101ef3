// Package registry maps arbitrary project path spellings to one stable
// project identity and tracks one registration per (project, source
// ecosystem). It lives in its own SQLite file so the main store can be
// rebuilt without losing project identities.
package registry

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/evanwhite/codetrace/pkg/db"
)

const schema = `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		canonical_path TEXT NOT NULL UNIQUE,
		display_path TEXT NOT NULL,
		git_root TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS project_aliases (
		alias_path TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS project_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		source TEXT NOT NULL,
		source_root TEXT,
		last_indexed_at DATETIME,
		counts TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(project_id, source)
	);

	CREATE INDEX IF NOT EXISTS idx_project_sources_project ON project_sources(project_id);
	CREATE INDEX IF NOT EXISTS idx_project_sources_indexed ON project_sources(last_indexed_at);
`

// Registry is the cross-project registry backed by its own SQLite file.
type Registry struct {
	db     *sqlx.DB
	dbPath string
}

// Options configures Open. An empty Path triggers the writable-location
// bootstrap in ResolveDBPath.
type Options struct {
	Path string
}

// Open opens (or lazily creates) the registry database and initializes its
// schema.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	dbPath := opts.Path
	if dbPath == "" {
		resolved, err := ResolveDBPath(ctx)
		if err != nil {
			return nil, err
		}
		dbPath = resolved
	}

	sqlDB, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open registry database")
	}

	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "failed to initialize registry schema")
	}

	return &Registry{db: sqlDB, dbPath: dbPath}, nil
}

// DBPath returns the path of the backing database file.
func (r *Registry) DBPath() string {
	return r.dbPath
}

// Close closes the registry database.
func (r *Registry) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RegisterInput is the input to Register.
type RegisterInput struct {
	Path       string
	Source     string
	SourceRoot string
	Counts     map[string]int64
	Metadata   map[string]any
}

// Registration is one (project, source) registration joined with its
// project row.
type Registration struct {
	ProjectID     int64
	CanonicalPath string
	DisplayPath   string
	GitRoot       string
	Source        string
	SourceRoot    string
	LastIndexedAt time.Time
	Counts        map[string]int64
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type dbRegistration struct {
	ProjectID     int64                          `db:"project_id"`
	CanonicalPath string                         `db:"canonical_path"`
	DisplayPath   string                         `db:"display_path"`
	GitRoot       sql.NullString                 `db:"git_root"`
	Source        string                         `db:"source"`
	SourceRoot    sql.NullString                 `db:"source_root"`
	LastIndexedAt sql.NullTime                   `db:"last_indexed_at"`
	Counts        db.JSONField[map[string]int64] `db:"counts"`
	Metadata      db.JSONField[map[string]any]   `db:"metadata"`
	CreatedAt     time.Time                      `db:"created_at"`
	UpdatedAt     time.Time                      `db:"updated_at"`
}

func (d dbRegistration) toRegistration() Registration {
	reg := Registration{
		ProjectID:     d.ProjectID,
		CanonicalPath: d.CanonicalPath,
		DisplayPath:   d.DisplayPath,
		GitRoot:       d.GitRoot.String,
		Source:        d.Source,
		SourceRoot:    d.SourceRoot.String,
		Counts:        d.Counts.Data,
		Metadata:      d.Metadata.Data,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.LastIndexedAt.Valid {
		reg.LastIndexedAt = d.LastIndexedAt.Time
	}
	return reg
}

const registrationColumns = `
	p.id AS project_id, p.canonical_path, p.display_path, p.git_root,
	s.source, s.source_root, s.last_indexed_at, s.counts, s.metadata,
	s.created_at, s.updated_at
`

// Register canonicalizes the given path and upserts the project, an alias
// row for the raw spelling if it differs, and the (project, source)
// registration. Both upserts are single insert-or-update-on-conflict
// statements so two concurrent indexing runs for the same project cannot
// race each other into duplicates.
func (r *Registry) Register(ctx context.Context, input RegisterInput) (*Registration, error) {
	if input.Source == "" {
		return nil, errors.New("source ecosystem is required")
	}

	resolved, err := Canonicalize(input.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to canonicalize %s", input.Path)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var projectID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO projects (canonical_path, display_path, git_root, metadata, created_at, updated_at)
		VALUES (?, ?, ?, '{}', ?, ?)
		ON CONFLICT(canonical_path) DO UPDATE SET
			display_path = excluded.display_path,
			git_root = COALESCE(excluded.git_root, projects.git_root),
			updated_at = excluded.updated_at
		RETURNING id
	`, resolved.Canonical, resolved.Display, nullString(resolved.GitRoot), now, now).Scan(&projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert project")
	}

	// Record every non-canonical spelling we saw so later lookups by the
	// same spelling resolve without re-canonicalizing the filesystem.
	for _, alias := range resolved.Aliases {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_aliases (alias_path, project_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(alias_path) DO NOTHING
		`, alias, projectID, now); err != nil {
			return nil, errors.Wrapf(err, "failed to record alias %s", alias)
		}
	}

	counts := db.JSONField[map[string]int64]{Data: input.Counts}
	metadata := db.JSONField[map[string]any]{Data: input.Metadata}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_sources (project_id, source, source_root, last_indexed_at, counts, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, source) DO UPDATE SET
			source_root = excluded.source_root,
			last_indexed_at = excluded.last_indexed_at,
			counts = excluded.counts,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, projectID, input.Source, nullString(input.SourceRoot), now, counts, metadata, now, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert registration")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit registration")
	}

	return r.Get(ctx, input.Path, input.Source)
}

// Get resolves path to a project by canonical match first, then by the
// alias table, and returns its registration for the given source. With an
// empty source the most recently indexed registration wins. A nil result
// with a nil error means not found.
func (r *Registry) Get(ctx context.Context, path, source string) (*Registration, error) {
	projectID, err := r.lookupProjectID(ctx, path)
	if err != nil {
		return nil, err
	}
	if projectID == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + registrationColumns + `
		FROM project_sources s
		JOIN projects p ON p.id = s.project_id
		WHERE s.project_id = ?
	`
	args := []any{projectID}
	if source != "" {
		query += " AND s.source = ?"
		args = append(args, source)
	}
	query += " ORDER BY s.last_indexed_at DESC LIMIT 1"

	var row dbRegistration
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to load registration")
	}

	reg := row.toRegistration()
	return &reg, nil
}

// lookupProjectID resolves a raw path to a project id, trying the canonical
// path first and the alias table second. Returns 0 when the path is
// unknown.
func (r *Registry) lookupProjectID(ctx context.Context, path string) (int64, error) {
	resolved, err := Canonicalize(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to canonicalize %s", path)
	}

	candidates := append([]string{resolved.Canonical}, resolved.Aliases...)

	var projectID int64
	for _, candidate := range candidates {
		err := r.db.GetContext(ctx, &projectID,
			"SELECT id FROM projects WHERE canonical_path = ?", candidate)
		if err == nil {
			return projectID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, errors.Wrap(err, "failed to look up project")
		}

		err = r.db.GetContext(ctx, &projectID,
			"SELECT project_id FROM project_aliases WHERE alias_path = ?", candidate)
		if err == nil {
			return projectID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, errors.Wrap(err, "failed to look up project alias")
		}
	}
	return 0, nil
}

// List returns every registration, most recently indexed first, optionally
// filtered by source ecosystem.
func (r *Registry) List(ctx context.Context, source string) ([]Registration, error) {
	query := `
		SELECT ` + registrationColumns + `
		FROM project_sources s
		JOIN projects p ON p.id = s.project_id
	`
	var args []any
	if source != "" {
		query += " WHERE s.source = ?"
		args = append(args, source)
	}
	query += " ORDER BY s.last_indexed_at DESC"

	var rows []dbRegistration
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list registrations")
	}

	out := make([]Registration, len(rows))
	for i, row := range rows {
		out[i] = row.toRegistration()
	}
	return out, nil
}

// Remove deletes one (project, source) registration, or every registration
// for the project when source is empty. When the last registration goes,
// the project row and all its aliases go with it.
func (r *Registry) Remove(ctx context.Context, path, source string) error {
	projectID, err := r.lookupProjectID(ctx, path)
	if err != nil {
		return err
	}
	if projectID == 0 {
		return errors.Errorf("project not found: %s", path)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if source != "" {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM project_sources WHERE project_id = ? AND source = ?",
			projectID, source); err != nil {
			return errors.Wrap(err, "failed to delete registration")
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM project_sources WHERE project_id = ?", projectID); err != nil {
			return errors.Wrap(err, "failed to delete registrations")
		}
	}

	var remaining int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM project_sources WHERE project_id = ?", projectID).Scan(&remaining); err != nil {
		return errors.Wrap(err, "failed to count remaining registrations")
	}

	if remaining == 0 {
		// Aliases cascade with the project row.
		if _, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID); err != nil {
			return errors.Wrap(err, "failed to delete project")
		}
	}

	return tx.Commit()
}

// GlobalStats aggregates counts across every registration.
type GlobalStats struct {
	Projects      int              `json:"projects"`
	Registrations int              `json:"registrations"`
	Aliases       int              `json:"aliases"`
	EntityCounts  map[string]int64 `json:"entityCounts"`
}

// GlobalStats returns aggregate counts across all registered projects.
func (r *Registry) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	stats := &GlobalStats{EntityCounts: map[string]int64{}}

	if err := r.db.GetContext(ctx, &stats.Projects, "SELECT COUNT(*) FROM projects"); err != nil {
		return nil, errors.Wrap(err, "failed to count projects")
	}
	if err := r.db.GetContext(ctx, &stats.Registrations, "SELECT COUNT(*) FROM project_sources"); err != nil {
		return nil, errors.Wrap(err, "failed to count registrations")
	}
	if err := r.db.GetContext(ctx, &stats.Aliases, "SELECT COUNT(*) FROM project_aliases"); err != nil {
		return nil, errors.Wrap(err, "failed to count aliases")
	}

	var countBlobs []db.JSONField[map[string]int64]
	rows, err := r.db.QueryxContext(ctx, "SELECT counts FROM project_sources WHERE counts IS NOT NULL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read registration counts")
	}
	defer rows.Close()

	for rows.Next() {
		var blob db.JSONField[map[string]int64]
		if err := rows.Scan(&blob); err != nil {
			return nil, errors.Wrap(err, "failed to scan registration counts")
		}
		countBlobs = append(countBlobs, blob)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate registration counts")
	}

	for _, blob := range countBlobs {
		for entity, n := range blob.Data {
			stats.EntityCounts[strings.ToLower(entity)] += n
		}
	}
	return stats, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
