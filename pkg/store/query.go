package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/pkg/errors"

	"github.com/evanwhite/codetrace/pkg/cache"
)

// Every read consults the query cache first. A "not found" result is cached
// too, so repeated misses don't re-hit the store.

// GetConversation returns a conversation by its external session id,
// optionally scoped to one project path. Nil with a nil error means not
// found.
func (s *Store) GetConversation(ctx context.Context, externalID, projectPath string) (*Conversation, error) {
	key := cache.ConversationKey(externalID, projectPath)
	if v, ok := s.cache.Get(key); ok {
		if v == nil {
			return nil, nil
		}
		return v.(*Conversation), nil
	}

	query := `
		SELECT id, project_id, source, session_id, first_message_at, last_message_at,
			message_count, git_branch, app_version, metadata, created_at, updated_at
		FROM conversations
		WHERE session_id = ?
	`
	args := []any{externalID}
	if projectPath != "" {
		projectID, err := s.resolveProjectID(ctx, projectPath)
		if err != nil {
			return nil, err
		}
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY updated_at DESC LIMIT 1"

	var row dbConversation
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.cache.Set(key, nil)
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to load conversation %s", externalID)
	}

	conv := row.toConversation()
	s.cache.Set(key, conv)
	return conv, nil
}

// GetFileEdits returns every recorded edit of path, most recent first.
func (s *Store) GetFileEdits(ctx context.Context, path string) ([]FileEdit, error) {
	key := cache.EditsKey(path)
	if v, ok := s.cache.Get(key); ok {
		if v == nil {
			return nil, nil
		}
		return v.([]FileEdit), nil
	}

	var rows []dbFileEdit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, message_id, external_id, file_path, operation, diff, timestamp
		FROM file_edits
		WHERE file_path = ?
		ORDER BY COALESCE(timestamp, created_at) DESC
	`, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load edits for %s", path)
	}

	edits := make([]FileEdit, len(rows))
	for i, row := range rows {
		edits[i] = row.toFileEdit()
	}
	s.cache.Set(key, edits)
	return edits, nil
}

// GetCommitsForFile returns every commit whose file list contains path,
// most recent first.
func (s *Store) GetCommitsForFile(ctx context.Context, path string) ([]Commit, error) {
	key := cache.CommitsKey(path)
	if v, ok := s.cache.Get(key); ok {
		if v == nil {
			return nil, nil
		}
		return v.([]Commit), nil
	}

	var rows []dbCommit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, project_id, commit_hash, conversation_id, message_id, author, message, files, committed_at
		FROM git_commits
		WHERE files IS NOT NULL
		  AND EXISTS (SELECT 1 FROM json_each(git_commits.files) WHERE json_each.value = ?)
		ORDER BY COALESCE(committed_at, created_at) DESC
	`, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load commits for %s", path)
	}

	commits := make([]Commit, len(rows))
	for i, row := range rows {
		commits[i] = row.toCommit()
	}
	s.cache.Set(key, commits)
	return commits, nil
}

// GetDecisionsForFile returns every decision whose file list contains
// path, most recent first, with list fields decoded from their stored
// form.
func (s *Store) GetDecisionsForFile(ctx context.Context, path string) ([]Decision, error) {
	key := cache.DecisionsKey(path)
	if v, ok := s.cache.Get(key); ok {
		if v == nil {
			return nil, nil
		}
		return v.([]Decision), nil
	}

	var rows []dbDecision
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, conversation_id, external_id, decision, rationale, alternatives, files, timestamp
		FROM decisions
		WHERE files IS NOT NULL
		  AND EXISTS (SELECT 1 FROM json_each(decisions.files) WHERE json_each.value = ?)
		ORDER BY COALESCE(timestamp, created_at) DESC
	`, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load decisions for %s", path)
	}

	decisions := make([]Decision, len(rows))
	for i, row := range rows {
		decisions[i] = row.toDecision()
	}
	s.cache.Set(key, decisions)
	return decisions, nil
}

// GetFileTimeline merges the edits, commits and decisions touching path
// into one history, most recent first. This is the primary read operation
// for external callers.
func (s *Store) GetFileTimeline(ctx context.Context, path string) ([]TimelineEntry, error) {
	key := cache.TimelineKey(path)
	if v, ok := s.cache.Get(key); ok {
		if v == nil {
			return nil, nil
		}
		return v.([]TimelineEntry), nil
	}

	edits, err := s.GetFileEdits(ctx, path)
	if err != nil {
		return nil, err
	}
	commits, err := s.GetCommitsForFile(ctx, path)
	if err != nil {
		return nil, err
	}
	decisions, err := s.GetDecisionsForFile(ctx, path)
	if err != nil {
		return nil, err
	}

	timeline := make([]TimelineEntry, 0, len(edits)+len(commits)+len(decisions))
	for i := range edits {
		timeline = append(timeline, TimelineEntry{Kind: "edit", Timestamp: edits[i].Timestamp, Edit: &edits[i]})
	}
	for i := range commits {
		timeline = append(timeline, TimelineEntry{Kind: "commit", Timestamp: commits[i].CommittedAt, Commit: &commits[i]})
	}
	for i := range decisions {
		timeline = append(timeline, TimelineEntry{Kind: "decision", Timestamp: decisions[i].Timestamp, Decision: &decisions[i]})
	}

	// Most recent first; entries without a timestamp sink to the end.
	sort.SliceStable(timeline, func(i, j int) bool {
		ti, tj := timeline[i].Timestamp, timeline[j].Timestamp
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	s.cache.Set(key, timeline)
	return timeline, nil
}

// SearchMessages runs a full-text query over message content, best matches
// first. Results reflect the last RebuildSearchIndexes call.
func (s *Store) SearchMessages(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []dbSearchHit
	err := s.db.SelectContext(ctx, &rows, `
		SELECT m.id, m.conversation_id, m.external_id, m.role, m.content, m.timestamp
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search messages for %q", query)
	}

	hits := make([]SearchHit, len(rows))
	for i, row := range rows {
		hits[i] = row.toSearchHit()
	}
	return hits, nil
}

// SearchDecisions runs a full-text query over decision text and rationale.
func (s *Store) SearchDecisions(ctx context.Context, query string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []dbDecision
	err := s.db.SelectContext(ctx, &rows, `
		SELECT d.id, d.conversation_id, d.external_id, d.decision, d.rationale, d.alternatives, d.files, d.timestamp
		FROM decisions_fts f
		JOIN decisions d ON d.id = f.rowid
		WHERE decisions_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search decisions for %q", query)
	}

	decisions := make([]Decision, len(rows))
	for i, row := range rows {
		decisions[i] = row.toDecision()
	}
	return decisions, nil
}
