// Package store is the ingestion and query layer of the codetrace storage
// core. It accepts batches of externally-identified records in dependency
// order, upserts them idempotently, and answers point and range queries
// through a bounded read-through cache.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/evanwhite/codetrace/pkg/cache"
	"github.com/evanwhite/codetrace/pkg/db"
	"github.com/evanwhite/codetrace/pkg/db/migrations"
	"github.com/evanwhite/codetrace/pkg/logger"
	"github.com/evanwhite/codetrace/pkg/registry"
)

// Options configures Open.
type Options struct {
	// DBPath is the main store file. Empty means db.DefaultDBPath().
	DBPath string
	// Registry resolves project paths to project ids. Required.
	Registry *registry.Registry
	// CacheEntries and CacheTTL configure the query cache. The cache stays
	// disabled while CacheEntries is zero.
	CacheEntries int
	CacheTTL     time.Duration
}

// Store is the ingestion and query layer over one SQLite store file.
type Store struct {
	db    *sqlx.DB
	reg   *registry.Registry
	cache *cache.QueryCache

	// projectIDs memoizes path -> project id within this instance so
	// repeated records in one batch don't repeat the registry lookup.
	mu         sync.Mutex
	projectIDs map[string]int64
}

// Open opens the main store, applies pending migrations and wires the query
// cache.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry is required")
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		def, err := db.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		dbPath = def
	}

	sqlDB, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open store database")
	}

	runner := db.NewMigrationRunner(sqlDB)
	if err := runner.ApplyAll(ctx, migrations.All()); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "failed to migrate store database")
	}

	qc := cache.New()
	if opts.CacheEntries > 0 {
		qc.Configure(opts.CacheEntries, opts.CacheTTL)
	}

	logger.G(ctx).WithField("path", dbPath).Debug("store opened")

	return &Store{
		db:         sqlDB,
		reg:        opts.Registry,
		cache:      qc,
		projectIDs: map[string]int64{},
	}, nil
}

// Close closes the store database. The cache is process-local and simply
// dropped.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Cache exposes the query cache for observability and explicit control.
func (s *Store) Cache() *cache.QueryCache {
	return s.cache
}

// DB exposes the underlying handle for the migration CLI. Not for general
// use.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Validate checks that every required table exists and that the applied
// migration history matches the in-code definitions.
func (s *Store) Validate(ctx context.Context) error {
	required := []string{
		"schema_version",
		"conversations",
		"messages",
		"tool_uses",
		"tool_results",
		"file_edits",
		"thinking_blocks",
		"decisions",
		"mistakes",
		"requirements",
		"validations",
		"git_commits",
	}

	for _, table := range required {
		var exists bool
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name=?
		`, table).Scan(&exists)
		if err != nil {
			return errors.Wrapf(err, "failed to check if table %s exists", table)
		}
		if !exists {
			return errors.Errorf("required table %s does not exist", table)
		}
	}

	runner := db.NewMigrationRunner(s.db)
	ok, err := runner.Verify(ctx, migrations.All())
	if err != nil {
		return errors.Wrap(err, "failed to verify migration checksums")
	}
	if !ok {
		logger.G(ctx).Warn("schema_version checksums have drifted from the code")
	}
	return nil
}

// RebuildSearchIndexes rebuilds every full-text index from its content
// table. The indexes are not maintained during bulk writes; callers run one
// rebuild at the end of a multi-entity batch.
func (s *Store) RebuildSearchIndexes(ctx context.Context) error {
	for _, fts := range []string{"messages_fts", "decisions_fts"} {
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO "+fts+"("+fts+") VALUES('rebuild')"); err != nil {
			return errors.Wrapf(err, "failed to rebuild %s", fts)
		}
	}
	return nil
}

// resolveProjectID maps a raw project path to its registry project id,
// memoized per store instance.
func (s *Store) resolveProjectID(ctx context.Context, path string) (int64, error) {
	s.mu.Lock()
	if id, ok := s.projectIDs[path]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	reg, err := s.reg.Get(ctx, path, "")
	if err != nil {
		return 0, errors.Wrapf(err, "failed to resolve project %s", path)
	}
	if reg == nil {
		return 0, errors.Errorf("project not registered: %s", path)
	}

	s.mu.Lock()
	s.projectIDs[path] = reg.ProjectID
	s.mu.Unlock()
	return reg.ProjectID, nil
}
