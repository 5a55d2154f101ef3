package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/evanwhite/codetrace/pkg/db"
	"github.com/evanwhite/codetrace/pkg/logger"
	"github.com/evanwhite/codetrace/pkg/types/entities"
)

// Batches must be submitted in dependency order: conversations, then
// messages, then the message-scoped and conversation-scoped entities, then
// commits. Each stage returns the external-id to internal-id map the next
// stage consumes. A record whose parent scope cannot be resolved is skipped
// and counted, never fatal to the batch; every row of a batch commits in one
// transaction or none do.

// BatchResult reports the outcome of one ingestion batch.
type BatchResult struct {
	// BatchID correlates the batch across log lines.
	BatchID string
	// Processed is the number of rows upserted.
	Processed int
	// Skipped is the number of records dropped for a missing or
	// unresolvable parent scope.
	Skipped int
	// IDMap maps each processed record's external id to its internal id.
	IDMap map[string]int64

	skips *multierror.Error
}

func newBatchResult() *BatchResult {
	return &BatchResult{
		BatchID: uuid.NewString(),
		IDMap:   map[string]int64{},
	}
}

func (b *BatchResult) skip(err error) {
	b.Skipped++
	b.skips = multierror.Append(b.skips, err)
}

// SkipReasons returns the accumulated skip reasons, nil when nothing was
// skipped.
func (b *BatchResult) SkipReasons() error {
	return b.skips.ErrorOrNil()
}

func (b *BatchResult) log(ctx context.Context, entity string) {
	logger.G(ctx).WithFields(map[string]any{
		"batch":     b.BatchID,
		"entity":    entity,
		"processed": b.Processed,
		"skipped":   b.Skipped,
	}).Debug("ingested batch")
}

// IngestConversations upserts a batch of conversations for one project and
// source ecosystem and returns the session-id to conversation-id map. The
// whole query cache is cleared once per batch rather than invalidating
// individual keys on the hot ingestion path.
func (s *Store) IngestConversations(ctx context.Context, projectPath, source string, records []entities.ConversationRecord) (*BatchResult, error) {
	if source == "" {
		return nil, errors.New("source ecosystem is required")
	}

	projectID, err := s.resolveProjectID(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	res := newBatchResult()
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}

			var id int64
			metadata := db.JSONField[map[string]any]{Data: rec.Metadata}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO conversations (
					project_id, source, session_id, first_message_at, last_message_at,
					message_count, git_branch, app_version, metadata, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(project_id, source, session_id) DO UPDATE SET
					first_message_at = excluded.first_message_at,
					last_message_at = excluded.last_message_at,
					message_count = excluded.message_count,
					git_branch = excluded.git_branch,
					app_version = excluded.app_version,
					metadata = excluded.metadata,
					updated_at = excluded.updated_at
				RETURNING id
			`, projectID, source, rec.SessionID, nullTime(rec.FirstMessageAt), nullTime(rec.LastMessageAt),
				rec.MessageCount, nullStr(rec.GitBranch), nullStr(rec.AppVersion), metadata, now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert conversation %s", rec.SessionID)
			}

			res.IDMap[rec.SessionID] = id
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Clear()
	res.log(ctx, "conversations")
	return res, nil
}

// IngestMessages upserts a batch of messages using the conversation id map
// from IngestConversations, then runs the deferred second pass that fills
// each message's internal parent link. The second pass is required because
// a child can appear before its parent in source order.
func (s *Store) IngestMessages(ctx context.Context, conversationIDs map[string]int64, records []entities.MessageRecord) (*BatchResult, error) {
	res := newBatchResult()
	touched := map[int64]bool{}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}
			convID, ok := conversationIDs[rec.SessionID]
			if !ok {
				res.skip(errors.Errorf("message %s: unresolved conversation %s", rec.ExternalID, rec.SessionID))
				continue
			}

			var id int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO messages (
					conversation_id, external_id, parent_external_id, type, role,
					content, timestamp, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(conversation_id, external_id) DO UPDATE SET
					parent_external_id = excluded.parent_external_id,
					type = excluded.type,
					role = excluded.role,
					content = excluded.content,
					timestamp = excluded.timestamp,
					updated_at = excluded.updated_at
				RETURNING id
			`, convID, rec.ExternalID, nullStr(rec.ParentExternalID), rec.Type, nullStr(rec.Role),
				nullStr(rec.Content), nullTime(rec.Timestamp), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert message %s", rec.ExternalID)
			}

			res.IDMap[rec.ExternalID] = id
			res.Processed++
			touched[convID] = true
		}

		if len(touched) == 0 {
			return nil
		}

		// Deferred pass: join each message to the sibling row carrying its
		// parent's external id. Idempotent and scoped to the batch's
		// conversations, it also repairs links left dangling by earlier
		// batches that referenced a parent ingested only now.
		ids := make([]int64, 0, len(touched))
		for id := range touched {
			ids = append(ids, id)
		}
		query, args, err := sqlx.In(`
			UPDATE messages SET parent_id = (
				SELECT parent.id FROM messages parent
				WHERE parent.conversation_id = messages.conversation_id
				  AND parent.external_id = messages.parent_external_id
			)
			WHERE conversation_id IN (?) AND parent_external_id IS NOT NULL
		`, ids)
		if err != nil {
			return errors.Wrap(err, "failed to build parent link query")
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return errors.Wrap(err, "failed to resolve message parent links")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Clear()
	res.log(ctx, "messages")
	return res, nil
}

// IngestToolUses upserts tool invocations scoped by message.
func (s *Store) IngestToolUses(ctx context.Context, messageIDs map[string]int64, records []entities.ToolUseRecord) (*BatchResult, error) {
	res := newBatchResult()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}
			messageID, ok := messageIDs[rec.MessageExternalID]
			if !ok {
				res.skip(errors.Errorf("tool use %s: unresolved message %s", rec.ExternalID, rec.MessageExternalID))
				continue
			}

			var id int64
			input := db.JSONField[map[string]any]{Data: rec.Input}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO tool_uses (message_id, external_id, name, input, timestamp, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(message_id, external_id) DO UPDATE SET
					name = excluded.name,
					input = excluded.input,
					timestamp = excluded.timestamp,
					updated_at = excluded.updated_at
				RETURNING id
			`, messageID, rec.ExternalID, rec.Name, input, nullTime(rec.Timestamp), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert tool use %s", rec.ExternalID)
			}

			res.IDMap[rec.ExternalID] = id
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.log(ctx, "tool_uses")
	return res, nil
}

// IngestToolResults upserts tool results scoped by tool use.
func (s *Store) IngestToolResults(ctx context.Context, toolUseIDs map[string]int64, records []entities.ToolResultRecord) (*BatchResult, error) {
	res := newBatchResult()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}
			toolUseID, ok := toolUseIDs[rec.ToolUseExternalID]
			if !ok {
				res.skip(errors.Errorf("tool result %s: unresolved tool use %s", rec.ExternalID, rec.ToolUseExternalID))
				continue
			}

			var id int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO tool_results (tool_use_id, external_id, content, is_error, timestamp, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(tool_use_id, external_id) DO UPDATE SET
					content = excluded.content,
					is_error = excluded.is_error,
					timestamp = excluded.timestamp,
					updated_at = excluded.updated_at
				RETURNING id
			`, toolUseID, rec.ExternalID, nullStr(rec.Content), rec.IsError, nullTime(rec.Timestamp), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert tool result %s", rec.ExternalID)
			}

			res.IDMap[rec.ExternalID] = id
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.log(ctx, "tool_results")
	return res, nil
}

// IngestFileEdits upserts file edits scoped by message and invalidates the
// file-scoped cache keys for every path the batch touched.
func (s *Store) IngestFileEdits(ctx context.Context, messageIDs map[string]int64, records []entities.FileEditRecord) (*BatchResult, error) {
	res := newBatchResult()
	touched := map[string]bool{}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}
			messageID, ok := messageIDs[rec.MessageExternalID]
			if !ok {
				res.skip(errors.Errorf("file edit %s: unresolved message %s", rec.ExternalID, rec.MessageExternalID))
				continue
			}

			var id int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO file_edits (message_id, external_id, file_path, operation, diff, timestamp, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(message_id, external_id) DO UPDATE SET
					file_path = excluded.file_path,
					operation = excluded.operation,
					diff = excluded.diff,
					timestamp = excluded.timestamp,
					updated_at = excluded.updated_at
				RETURNING id
			`, messageID, rec.ExternalID, rec.FilePath, rec.Operation, nullStr(rec.Diff), nullTime(rec.Timestamp), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert file edit %s", rec.ExternalID)
			}

			res.IDMap[rec.ExternalID] = id
			res.Processed++
			touched[rec.FilePath] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for path := range touched {
		s.cache.InvalidateFile(path)
	}
	res.log(ctx, "file_edits")
	return res, nil
}

// IngestThinkingBlocks upserts thinking blocks scoped by message.
func (s *Store) IngestThinkingBlocks(ctx context.Context, messageIDs map[string]int64, records []entities.ThinkingBlockRecord) (*BatchResult, error) {
	res := newBatchResult()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}
			messageID, ok := messageIDs[rec.MessageExternalID]
			if !ok {
				res.skip(errors.Errorf("thinking block %s: unresolved message %s", rec.ExternalID, rec.MessageExternalID))
				continue
			}

			var id int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO thinking_blocks (message_id, external_id, content, timestamp, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(message_id, external_id) DO UPDATE SET
					content = excluded.content,
					timestamp = excluded.timestamp,
					updated_at = excluded.updated_at
				RETURNING id
			`, messageID, rec.ExternalID, nullStr(rec.Content), nullTime(rec.Timestamp), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert thinking block %s", rec.ExternalID)
			}

			res.IDMap[rec.ExternalID] = id
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.log(ctx, "thinking_blocks")
	return res, nil
}

// IngestDecisions upserts extracted decisions scoped by conversation and
// invalidates the file-scoped keys for every file the decisions reference.
func (s *Store) IngestDecisions(ctx context.Context, conversationIDs map[string]int64, records []entities.DecisionRecord) (*BatchResult, error) {
	res := newBatchResult()
	touched := map[string]bool{}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}
			convID, ok := conversationIDs[rec.SessionID]
			if !ok {
				res.skip(errors.Errorf("decision %s: unresolved conversation %s", rec.ExternalID, rec.SessionID))
				continue
			}

			var id int64
			alternatives := db.JSONField[[]string]{Data: rec.Alternatives}
			files := db.JSONField[[]string]{Data: rec.Files}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO decisions (conversation_id, external_id, decision, rationale, alternatives, files, timestamp, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(conversation_id, external_id) DO UPDATE SET
					decision = excluded.decision,
					rationale = excluded.rationale,
					alternatives = excluded.alternatives,
					files = excluded.files,
					timestamp = excluded.timestamp,
					updated_at = excluded.updated_at
				RETURNING id
			`, convID, rec.ExternalID, rec.Decision, nullStr(rec.Rationale), alternatives, files, nullTime(rec.Timestamp), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert decision %s", rec.ExternalID)
			}

			res.IDMap[rec.ExternalID] = id
			res.Processed++
			for _, f := range rec.Files {
				touched[f] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for path := range touched {
		s.cache.InvalidateFile(path)
	}
	res.log(ctx, "decisions")
	return res, nil
}

// IngestMistakes upserts extracted mistakes scoped by conversation.
func (s *Store) IngestMistakes(ctx context.Context, conversationIDs map[string]int64, records []entities.MistakeRecord) (*BatchResult, error) {
	res := newBatchResult()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}
			convID, ok := conversationIDs[rec.SessionID]
			if !ok {
				res.skip(errors.Errorf("mistake %s: unresolved conversation %s", rec.ExternalID, rec.SessionID))
				continue
			}

			var id int64
			files := db.JSONField[[]string]{Data: rec.Files}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO mistakes (conversation_id, external_id, description, correction, files, timestamp, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(conversation_id, external_id) DO UPDATE SET
					description = excluded.description,
					correction = excluded.correction,
					files = excluded.files,
					timestamp = excluded.timestamp,
					updated_at = excluded.updated_at
				RETURNING id
			`, convID, rec.ExternalID, rec.Description, nullStr(rec.Correction), files, nullTime(rec.Timestamp), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert mistake %s", rec.ExternalID)
			}

			res.IDMap[rec.ExternalID] = id
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.log(ctx, "mistakes")
	return res, nil
}

// IngestRequirements upserts extracted requirements scoped by conversation.
func (s *Store) IngestRequirements(ctx context.Context, conversationIDs map[string]int64, records []entities.RequirementRecord) (*BatchResult, error) {
	res := newBatchResult()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}
			convID, ok := conversationIDs[rec.SessionID]
			if !ok {
				res.skip(errors.Errorf("requirement %s: unresolved conversation %s", rec.ExternalID, rec.SessionID))
				continue
			}

			var id int64
			files := db.JSONField[[]string]{Data: rec.Files}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO requirements (conversation_id, external_id, requirement, status, files, timestamp, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(conversation_id, external_id) DO UPDATE SET
					requirement = excluded.requirement,
					status = excluded.status,
					files = excluded.files,
					timestamp = excluded.timestamp,
					updated_at = excluded.updated_at
				RETURNING id
			`, convID, rec.ExternalID, rec.Requirement, nullStr(rec.Status), files, nullTime(rec.Timestamp), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert requirement %s", rec.ExternalID)
			}

			res.IDMap[rec.ExternalID] = id
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.log(ctx, "requirements")
	return res, nil
}

// IngestValidations upserts extracted validation runs scoped by
// conversation.
func (s *Store) IngestValidations(ctx context.Context, conversationIDs map[string]int64, records []entities.ValidationRecord) (*BatchResult, error) {
	res := newBatchResult()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}
			convID, ok := conversationIDs[rec.SessionID]
			if !ok {
				res.skip(errors.Errorf("validation %s: unresolved conversation %s", rec.ExternalID, rec.SessionID))
				continue
			}

			var id int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO validations (conversation_id, external_id, status, command, output, timestamp, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(conversation_id, external_id) DO UPDATE SET
					status = excluded.status,
					command = excluded.command,
					output = excluded.output,
					timestamp = excluded.timestamp,
					updated_at = excluded.updated_at
				RETURNING id
			`, convID, rec.ExternalID, rec.Status, nullStr(rec.Command), nullStr(rec.Output), nullTime(rec.Timestamp), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert validation %s", rec.ExternalID)
			}

			res.IDMap[rec.ExternalID] = id
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.log(ctx, "validations")
	return res, nil
}

// IngestCommits upserts git commits scoped by (project, hash). Conversation
// and message links are optional: an unresolved link stores NULL rather
// than skipping the record, because the commit's own scope is the project.
func (s *Store) IngestCommits(ctx context.Context, projectPath string, conversationIDs, messageIDs map[string]int64, records []entities.CommitRecord) (*BatchResult, error) {
	projectID, err := s.resolveProjectID(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	res := newBatchResult()
	touched := map[string]bool{}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for _, rec := range records {
			if err := rec.Validate(); err != nil {
				res.skip(err)
				continue
			}

			var convID, messageID any
			if id, ok := conversationIDs[rec.SessionID]; ok && rec.SessionID != "" {
				convID = id
			}
			if id, ok := messageIDs[rec.MessageExternalID]; ok && rec.MessageExternalID != "" {
				messageID = id
			}

			var id int64
			files := db.JSONField[[]string]{Data: rec.Files}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO git_commits (project_id, commit_hash, conversation_id, message_id, author, message, files, committed_at, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(project_id, commit_hash) DO UPDATE SET
					conversation_id = excluded.conversation_id,
					message_id = excluded.message_id,
					author = excluded.author,
					message = excluded.message,
					files = excluded.files,
					committed_at = excluded.committed_at,
					updated_at = excluded.updated_at
				RETURNING id
			`, projectID, rec.Hash, convID, messageID, nullStr(rec.Author), nullStr(rec.Message), files, nullTime(rec.CommittedAt), now, now).Scan(&id)
			if err != nil {
				return errors.Wrapf(err, "failed to upsert commit %s", rec.Hash)
			}

			res.IDMap[rec.Hash] = id
			res.Processed++
			for _, f := range rec.Files {
				touched[f] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for path := range touched {
		s.cache.InvalidateFile(path)
	}
	res.log(ctx, "git_commits")
	return res, nil
}

// inTx runs fn inside one transaction: all rows committed or none.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
