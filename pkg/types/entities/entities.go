// Package entities defines the typed records the ingestion layer accepts
// from upstream parsers and extractors. Every record carries the external id
// assigned by its producer plus the external id of its parent scope; the
// store reconciles those with its own internal ids during ingestion.
package entities

import "time"

// ConversationRecord is one conversation session from a source ecosystem,
// scoped by (project, source, SessionID).
type ConversationRecord struct {
	SessionID      string         `mapstructure:"session_id"`
	FirstMessageAt *time.Time     `mapstructure:"first_message_at"`
	LastMessageAt  *time.Time     `mapstructure:"last_message_at"`
	MessageCount   int            `mapstructure:"message_count"`
	GitBranch      string         `mapstructure:"git_branch"`
	AppVersion     string         `mapstructure:"app_version"`
	Metadata       map[string]any `mapstructure:"metadata"`
}

// MessageRecord is one message, scoped by (conversation, ExternalID).
// ParentExternalID may reference a sibling that appears later in the same
// batch; the store resolves the internal parent link in a deferred pass.
type MessageRecord struct {
	SessionID        string     `mapstructure:"session_id"`
	ExternalID       string     `mapstructure:"external_id"`
	ParentExternalID string     `mapstructure:"parent_external_id"`
	Type             string     `mapstructure:"type"`
	Role             string     `mapstructure:"role"`
	Content          string     `mapstructure:"content"`
	Timestamp        *time.Time `mapstructure:"timestamp"`
}

// ToolUseRecord is one tool invocation, scoped by (message, ExternalID).
type ToolUseRecord struct {
	MessageExternalID string         `mapstructure:"message_external_id"`
	ExternalID        string         `mapstructure:"external_id"`
	Name              string         `mapstructure:"name"`
	Input             map[string]any `mapstructure:"input"`
	Timestamp         *time.Time     `mapstructure:"timestamp"`
}

// ToolResultRecord is the result of a tool invocation, scoped by
// (tool use, ExternalID).
type ToolResultRecord struct {
	ToolUseExternalID string     `mapstructure:"tool_use_external_id"`
	ExternalID        string     `mapstructure:"external_id"`
	Content           string     `mapstructure:"content"`
	IsError           bool       `mapstructure:"is_error"`
	Timestamp         *time.Time `mapstructure:"timestamp"`
}

// FileEditRecord is one file modification made during a message, scoped by
// (message, ExternalID).
type FileEditRecord struct {
	MessageExternalID string     `mapstructure:"message_external_id"`
	ExternalID        string     `mapstructure:"external_id"`
	FilePath          string     `mapstructure:"file_path"`
	Operation         string     `mapstructure:"operation"`
	Diff              string     `mapstructure:"diff"`
	Timestamp         *time.Time `mapstructure:"timestamp"`
}

// ThinkingBlockRecord is one extended-thinking block, scoped by
// (message, ExternalID).
type ThinkingBlockRecord struct {
	MessageExternalID string     `mapstructure:"message_external_id"`
	ExternalID        string     `mapstructure:"external_id"`
	Content           string     `mapstructure:"content"`
	Timestamp         *time.Time `mapstructure:"timestamp"`
}

// DecisionRecord is an extracted design decision, scoped by
// (conversation, ExternalID).
type DecisionRecord struct {
	SessionID    string     `mapstructure:"session_id"`
	ExternalID   string     `mapstructure:"external_id"`
	Decision     string     `mapstructure:"decision"`
	Rationale    string     `mapstructure:"rationale"`
	Alternatives []string   `mapstructure:"alternatives"`
	Files        []string   `mapstructure:"files"`
	Timestamp    *time.Time `mapstructure:"timestamp"`
}

// MistakeRecord is an extracted mistake/correction pair, scoped by
// (conversation, ExternalID).
type MistakeRecord struct {
	SessionID   string     `mapstructure:"session_id"`
	ExternalID  string     `mapstructure:"external_id"`
	Description string     `mapstructure:"description"`
	Correction  string     `mapstructure:"correction"`
	Files       []string   `mapstructure:"files"`
	Timestamp   *time.Time `mapstructure:"timestamp"`
}

// RequirementRecord is an extracted requirement, scoped by
// (conversation, ExternalID).
type RequirementRecord struct {
	SessionID   string     `mapstructure:"session_id"`
	ExternalID  string     `mapstructure:"external_id"`
	Requirement string     `mapstructure:"requirement"`
	Status      string     `mapstructure:"status"`
	Files       []string   `mapstructure:"files"`
	Timestamp   *time.Time `mapstructure:"timestamp"`
}

// ValidationRecord is an extracted validation run (tests, builds, lints),
// scoped by (conversation, ExternalID).
type ValidationRecord struct {
	SessionID  string     `mapstructure:"session_id"`
	ExternalID string     `mapstructure:"external_id"`
	Status     string     `mapstructure:"status"`
	Command    string     `mapstructure:"command"`
	Output     string     `mapstructure:"output"`
	Timestamp  *time.Time `mapstructure:"timestamp"`
}

// CommitRecord is one source-control commit linked to a project, scoped by
// (project, Hash). SessionID and MessageExternalID optionally link the
// commit back to the conversation it came out of.
type CommitRecord struct {
	Hash              string     `mapstructure:"hash"`
	SessionID         string     `mapstructure:"session_id"`
	MessageExternalID string     `mapstructure:"message_external_id"`
	Author            string     `mapstructure:"author"`
	Message           string     `mapstructure:"message"`
	Files             []string   `mapstructure:"files"`
	CommittedAt       *time.Time `mapstructure:"committed_at"`
}
