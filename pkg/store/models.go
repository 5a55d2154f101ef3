package store

import (
	"database/sql"
	"time"

	"github.com/evanwhite/codetrace/pkg/db"
)

// Conversation is one indexed conversation session.
type Conversation struct {
	ID             int64          `json:"id"`
	ProjectID      int64          `json:"projectId"`
	Source         string         `json:"source"`
	SessionID      string         `json:"sessionId"`
	FirstMessageAt *time.Time     `json:"firstMessageAt,omitempty"`
	LastMessageAt  *time.Time     `json:"lastMessageAt,omitempty"`
	MessageCount   int            `json:"messageCount"`
	GitBranch      string         `json:"gitBranch,omitempty"`
	AppVersion     string         `json:"appVersion,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// FileEdit is one recorded file modification.
type FileEdit struct {
	ID         int64      `json:"id"`
	MessageID  int64      `json:"messageId"`
	ExternalID string     `json:"externalId"`
	FilePath   string     `json:"filePath"`
	Operation  string     `json:"operation"`
	Diff       string     `json:"diff,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// Decision is one extracted design decision.
type Decision struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversationId"`
	ExternalID     string     `json:"externalId"`
	Decision       string     `json:"decision"`
	Rationale      string     `json:"rationale,omitempty"`
	Alternatives   []string   `json:"alternatives,omitempty"`
	Files          []string   `json:"files,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// Commit is one source-control commit linked to a project.
type Commit struct {
	ID             int64      `json:"id"`
	ProjectID      int64      `json:"projectId"`
	Hash           string     `json:"hash"`
	ConversationID *int64     `json:"conversationId,omitempty"`
	MessageID      *int64     `json:"messageId,omitempty"`
	Author         string     `json:"author,omitempty"`
	Message        string     `json:"message,omitempty"`
	Files          []string   `json:"files,omitempty"`
	CommittedAt    *time.Time `json:"committedAt,omitempty"`
}

// TimelineEntry is one event in a file's merged history. Exactly one of
// Edit, Commit and Decision is set, indicated by Kind.
type TimelineEntry struct {
	Kind      string     `json:"kind"` // "edit", "commit" or "decision"
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Edit      *FileEdit  `json:"edit,omitempty"`
	Commit    *Commit    `json:"commit,omitempty"`
	Decision  *Decision  `json:"decision,omitempty"`
}

// SearchHit is one full-text search match.
type SearchHit struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversationId"`
	ExternalID     string     `json:"externalId"`
	Role           string     `json:"role,omitempty"`
	Content        string     `json:"content,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// Stats is a per-entity row count snapshot.
type Stats struct {
	Conversations  int64 `json:"conversations"`
	Messages       int64 `json:"messages"`
	ToolUses       int64 `json:"toolUses"`
	ToolResults    int64 `json:"toolResults"`
	FileEdits      int64 `json:"fileEdits"`
	ThinkingBlocks int64 `json:"thinkingBlocks"`
	Decisions      int64 `json:"decisions"`
	Mistakes       int64 `json:"mistakes"`
	Requirements   int64 `json:"requirements"`
	Validations    int64 `json:"validations"`
	Commits        int64 `json:"commits"`
}

type dbConversation struct {
	ID             int64                        `db:"id"`
	ProjectID      int64                        `db:"project_id"`
	Source         string                       `db:"source"`
	SessionID      string                       `db:"session_id"`
	FirstMessageAt sql.NullTime                 `db:"first_message_at"`
	LastMessageAt  sql.NullTime                 `db:"last_message_at"`
	MessageCount   int                          `db:"message_count"`
	GitBranch      sql.NullString               `db:"git_branch"`
	AppVersion     sql.NullString               `db:"app_version"`
	Metadata       db.JSONField[map[string]any] `db:"metadata"`
	CreatedAt      time.Time                    `db:"created_at"`
	UpdatedAt      time.Time                    `db:"updated_at"`
}

func (d dbConversation) toConversation() *Conversation {
	return &Conversation{
		ID:             d.ID,
		ProjectID:      d.ProjectID,
		Source:         d.Source,
		SessionID:      d.SessionID,
		FirstMessageAt: nullableTime(d.FirstMessageAt),
		LastMessageAt:  nullableTime(d.LastMessageAt),
		MessageCount:   d.MessageCount,
		GitBranch:      d.GitBranch.String,
		AppVersion:     d.AppVersion.String,
		Metadata:       d.Metadata.Data,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type dbFileEdit struct {
	ID         int64          `db:"id"`
	MessageID  int64          `db:"message_id"`
	ExternalID string         `db:"external_id"`
	FilePath   string         `db:"file_path"`
	Operation  string         `db:"operation"`
	Diff       sql.NullString `db:"diff"`
	Timestamp  sql.NullTime   `db:"timestamp"`
}

func (d dbFileEdit) toFileEdit() FileEdit {
	return FileEdit{
		ID:         d.ID,
		MessageID:  d.MessageID,
		ExternalID: d.ExternalID,
		FilePath:   d.FilePath,
		Operation:  d.Operation,
		Diff:       d.Diff.String,
		Timestamp:  nullableTime(d.Timestamp),
	}
}

type dbDecision struct {
	ID             int64                  `db:"id"`
	ConversationID int64                  `db:"conversation_id"`
	ExternalID     string                 `db:"external_id"`
	Decision       string                 `db:"decision"`
	Rationale      sql.NullString         `db:"rationale"`
	Alternatives   db.JSONField[[]string] `db:"alternatives"`
	Files          db.JSONField[[]string] `db:"files"`
	Timestamp      sql.NullTime           `db:"timestamp"`
}

func (d dbDecision) toDecision() Decision {
	return Decision{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		ExternalID:     d.ExternalID,
		Decision:       d.Decision,
		Rationale:      d.Rationale.String,
		Alternatives:   d.Alternatives.Data,
		Files:          d.Files.Data,
		Timestamp:      nullableTime(d.Timestamp),
	}
}

type dbCommit struct {
	ID             int64                  `db:"id"`
	ProjectID      int64                  `db:"project_id"`
	CommitHash     string                 `db:"commit_hash"`
	ConversationID sql.NullInt64          `db:"conversation_id"`
	MessageID      sql.NullInt64          `db:"message_id"`
	Author         sql.NullString         `db:"author"`
	Message        sql.NullString         `db:"message"`
	Files          db.JSONField[[]string] `db:"files"`
	CommittedAt    sql.NullTime           `db:"committed_at"`
}

func (d dbCommit) toCommit() Commit {
	return Commit{
		ID:             d.ID,
		ProjectID:      d.ProjectID,
		Hash:           d.CommitHash,
		ConversationID: nullableInt(d.ConversationID),
		MessageID:      nullableInt(d.MessageID),
		Author:         d.Author.String,
		Message:        d.Message.String,
		Files:          d.Files.Data,
		CommittedAt:    nullableTime(d.CommittedAt),
	}
}

type dbSearchHit struct {
	ID             int64          `db:"id"`
	ConversationID int64          `db:"conversation_id"`
	ExternalID     string         `db:"external_id"`
	Role           sql.NullString `db:"role"`
	Content        sql.NullString `db:"content"`
	Timestamp      sql.NullTime   `db:"timestamp"`
}

func (d dbSearchHit) toSearchHit() SearchHit {
	return SearchHit{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		ExternalID:     d.ExternalID,
		Role:           d.Role.String,
		Content:        d.Content.String,
		Timestamp:      nullableTime(d.Timestamp),
	}
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time
	return &out
}

func nullableInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	out := n.Int64
	return &out
}
