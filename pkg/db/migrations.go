package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Migration is a versioned schema change. Up and Down are plain SQL statement
// lists rather than opaque functions so the forward text can be checksummed
// into schema_version and verified against the code later.
type Migration struct {
	Version     int
	Description string
	Up          []string
	Down        []string // nil means the migration is irreversible
}

// Checksum returns the hex sha256 over the migration's version, description
// and forward statements. It detects drift between code and applied history,
// not tampering.
func (m Migration) Checksum() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\n%s\n", m.Version, m.Description)
	h.Write([]byte(strings.Join(m.Up, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// appliedMigration mirrors a schema_version row.
type appliedMigration struct {
	Version     int            `db:"version"`
	AppliedAt   time.Time      `db:"applied_at"`
	Description string         `db:"description"`
	Checksum    sql.NullString `db:"checksum"`
}

// MigrationRunner applies and rolls back migrations against one store file.
// It is safe to run from two processes at once: Apply takes an immediate
// (write-locking) transaction and re-checks the applied set under that lock,
// so a concurrent runner applying the same version degrades to a no-op.
type MigrationRunner struct {
	db *sqlx.DB
}

// NewMigrationRunner creates a new migration runner.
func NewMigrationRunner(db *sqlx.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// CurrentVersion returns the highest applied migration version, 0 if none.
func (r *MigrationRunner) CurrentVersion(ctx context.Context) (int, error) {
	if err := r.ensureVersionTable(ctx); err != nil {
		return 0, err
	}

	var version int
	err := r.db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err != nil {
		return 0, errors.Wrap(err, "failed to get current schema version")
	}
	return version, nil
}

// Pending returns the migrations with a version above the current one,
// ascending.
func (r *MigrationRunner) Pending(ctx context.Context, migrations []Migration) ([]Migration, error) {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})
	return pending, nil
}

// Apply executes a single migration inside an immediate transaction. If a
// concurrent process already recorded the version, Apply releases the lock
// and returns nil. Any statement failure rolls the whole migration back.
func (r *MigrationRunner) Apply(ctx context.Context, m Migration) error {
	if err := r.ensureVersionTable(ctx); err != nil {
		return err
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to acquire connection")
	}
	defer conn.Close()

	// BEGIN IMMEDIATE takes the write lock up front so the already-applied
	// re-check below cannot race with another process applying the same
	// version.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return errors.Wrapf(err, "failed to begin immediate transaction for migration %d", m.Version)
	}

	commit := false
	defer func() {
		if !commit {
			conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	var applied int
	err = conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_version WHERE version = ?", m.Version).Scan(&applied)
	if err != nil {
		return errors.Wrapf(err, "failed to re-check migration %d under lock", m.Version)
	}
	if applied > 0 {
		// Another process won the race. Not an error.
		return nil
	}

	for _, stmt := range m.Up {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "migration %d failed: %s", m.Version, m.Description)
		}
	}

	_, err = conn.ExecContext(ctx,
		"INSERT INTO schema_version (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		m.Version, time.Now().UTC(), m.Description, m.Checksum())
	if err != nil {
		return errors.Wrapf(err, "failed to record migration %d", m.Version)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return errors.Wrapf(err, "failed to commit migration %d", m.Version)
	}
	commit = true
	return nil
}

// ApplyAll applies every pending migration in ascending order, stopping at
// the first failure.
func (r *MigrationRunner) ApplyAll(ctx context.Context, migrations []Migration) error {
	pending, err := r.Pending(ctx, migrations)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := r.Apply(ctx, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
		}
	}
	return nil
}

// RollbackTo reverts every applied migration with version in (target,
// current], descending, each in its own transaction. If any migration in
// that range has no Down statements the call fails before reverting
// anything.
func (r *MigrationRunner) RollbackTo(ctx context.Context, migrations []Migration, target int) error {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if target >= current {
		return nil
	}

	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	var applied []int
	err = r.db.SelectContext(ctx, &applied,
		"SELECT version FROM schema_version WHERE version > ? ORDER BY version DESC", target)
	if err != nil {
		return errors.Wrap(err, "failed to list applied migrations")
	}

	// Refuse the whole rollback up front rather than stopping halfway
	// through an unsupported step.
	for _, v := range applied {
		m, ok := byVersion[v]
		if !ok {
			return errors.Errorf("migration %d is applied but not defined in code", v)
		}
		if len(m.Down) == 0 {
			return errors.Errorf("migration %d (%s) has no rollback statements", v, m.Description)
		}
	}

	for _, v := range applied {
		if err := r.rollbackOne(ctx, byVersion[v]); err != nil {
			return errors.Wrapf(err, "failed to roll back migration %d", v)
		}
	}
	return nil
}

func (r *MigrationRunner) rollbackOne(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, stmt := range m.Down {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "rollback statement failed for migration %d", m.Version)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", m.Version); err != nil {
		return errors.Wrap(err, "failed to remove migration record")
	}

	return tx.Commit()
}

// Verify recomputes the checksum of every applied migration from its in-code
// definition. Legacy rows with a NULL checksum are backfilled. A non-NULL
// mismatch (or an applied version with no in-code definition) returns false
// without an error: the store has drifted from the code and the caller
// decides what to do about it.
func (r *MigrationRunner) Verify(ctx context.Context, migrations []Migration) (bool, error) {
	if err := r.ensureVersionTable(ctx); err != nil {
		return false, err
	}

	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	var rows []appliedMigration
	err := r.db.SelectContext(ctx, &rows,
		"SELECT version, applied_at, description, checksum FROM schema_version ORDER BY version")
	if err != nil {
		return false, errors.Wrap(err, "failed to read schema_version")
	}

	ok := true
	for _, row := range rows {
		m, defined := byVersion[row.Version]
		if !defined {
			ok = false
			continue
		}

		want := m.Checksum()
		if !row.Checksum.Valid {
			_, err := r.db.ExecContext(ctx,
				"UPDATE schema_version SET checksum = ? WHERE version = ?", want, row.Version)
			if err != nil {
				return false, errors.Wrapf(err, "failed to backfill checksum for migration %d", row.Version)
			}
			continue
		}

		if row.Checksum.String != want {
			ok = false
		}
	}
	return ok, nil
}

// Applied returns the recorded schema_version rows in ascending order.
func (r *MigrationRunner) Applied(ctx context.Context) ([]AppliedMigration, error) {
	if err := r.ensureVersionTable(ctx); err != nil {
		return nil, err
	}

	var rows []appliedMigration
	err := r.db.SelectContext(ctx, &rows,
		"SELECT version, applied_at, description, checksum FROM schema_version ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read schema_version")
	}

	out := make([]AppliedMigration, len(rows))
	for i, row := range rows {
		out[i] = AppliedMigration{
			Version:     row.Version,
			AppliedAt:   row.AppliedAt,
			Description: row.Description,
			Checksum:    row.Checksum.String,
		}
	}
	return out, nil
}

// AppliedMigration is the exported view of a schema_version row.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

func (r *MigrationRunner) ensureVersionTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL,
			description TEXT,
			checksum TEXT
		)
	`)
	return errors.Wrap(err, "failed to create schema_version table")
}
