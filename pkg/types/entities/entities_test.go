package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessageRecord(t *testing.T) {
	rec, err := Decode[MessageRecord](map[string]any{
		"session_id":         "sess-1",
		"external_id":        "m1",
		"parent_external_id": "m0",
		"type":               "message",
		"role":               "assistant",
		"content":            "done",
		"timestamp":          "2024-05-01T10:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, "m0", rec.ParentExternalID)
	require.NotNil(t, rec.Timestamp)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), rec.Timestamp.UTC())
}

func TestDecodeRejectsMissingScopeFields(t *testing.T) {
	_, err := Decode[MessageRecord](map[string]any{
		"external_id": "m1",
		"content":     "orphan",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_id")

	_, err = Decode[ToolUseRecord](map[string]any{
		"message_external_id": "m1",
		"external_id":         "t1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestDecodeDecisionLists(t *testing.T) {
	rec, err := Decode[DecisionRecord](map[string]any{
		"session_id":   "sess-1",
		"external_id":  "d1",
		"decision":     "keep the registry in its own file",
		"alternatives": []any{"fold into main store"},
		"files":        []any{"pkg/registry/registry.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fold into main store"}, rec.Alternatives)
	assert.Equal(t, []string{"pkg/registry/registry.go"}, rec.Files)
}

func TestCommitRecordValidation(t *testing.T) {
	assert.Error(t, CommitRecord{}.Validate())
	// Session and message links are optional for commits.
	assert.NoError(t, CommitRecord{Hash: "abc123"}.Validate())
}
