package entities

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Validator is implemented by every record type. A failed validation means
// the record is missing a scope-linking field and must be skipped, not
// trusted.
type Validator interface {
	Validate() error
}

// Validate checks ConversationRecord required fields.
func (r ConversationRecord) Validate() error {
	if r.SessionID == "" {
		return errors.New("conversation record missing session_id")
	}
	return nil
}

// Validate checks MessageRecord required fields.
func (r MessageRecord) Validate() error {
	if r.SessionID == "" {
		return errors.New("message record missing session_id")
	}
	if r.ExternalID == "" {
		return errors.New("message record missing external_id")
	}
	return nil
}

// Validate checks ToolUseRecord required fields.
func (r ToolUseRecord) Validate() error {
	if r.MessageExternalID == "" {
		return errors.New("tool use record missing message_external_id")
	}
	if r.ExternalID == "" {
		return errors.New("tool use record missing external_id")
	}
	if r.Name == "" {
		return errors.New("tool use record missing name")
	}
	return nil
}

// Validate checks ToolResultRecord required fields.
func (r ToolResultRecord) Validate() error {
	if r.ToolUseExternalID == "" {
		return errors.New("tool result record missing tool_use_external_id")
	}
	if r.ExternalID == "" {
		return errors.New("tool result record missing external_id")
	}
	return nil
}

// Validate checks FileEditRecord required fields.
func (r FileEditRecord) Validate() error {
	if r.MessageExternalID == "" {
		return errors.New("file edit record missing message_external_id")
	}
	if r.ExternalID == "" {
		return errors.New("file edit record missing external_id")
	}
	if r.FilePath == "" {
		return errors.New("file edit record missing file_path")
	}
	return nil
}

// Validate checks ThinkingBlockRecord required fields.
func (r ThinkingBlockRecord) Validate() error {
	if r.MessageExternalID == "" {
		return errors.New("thinking block record missing message_external_id")
	}
	if r.ExternalID == "" {
		return errors.New("thinking block record missing external_id")
	}
	return nil
}

// Validate checks DecisionRecord required fields.
func (r DecisionRecord) Validate() error {
	if r.SessionID == "" {
		return errors.New("decision record missing session_id")
	}
	if r.ExternalID == "" {
		return errors.New("decision record missing external_id")
	}
	if r.Decision == "" {
		return errors.New("decision record missing decision text")
	}
	return nil
}

// Validate checks MistakeRecord required fields.
func (r MistakeRecord) Validate() error {
	if r.SessionID == "" {
		return errors.New("mistake record missing session_id")
	}
	if r.ExternalID == "" {
		return errors.New("mistake record missing external_id")
	}
	if r.Description == "" {
		return errors.New("mistake record missing description")
	}
	return nil
}

// Validate checks RequirementRecord required fields.
func (r RequirementRecord) Validate() error {
	if r.SessionID == "" {
		return errors.New("requirement record missing session_id")
	}
	if r.ExternalID == "" {
		return errors.New("requirement record missing external_id")
	}
	if r.Requirement == "" {
		return errors.New("requirement record missing requirement text")
	}
	return nil
}

// Validate checks ValidationRecord required fields.
func (r ValidationRecord) Validate() error {
	if r.SessionID == "" {
		return errors.New("validation record missing session_id")
	}
	if r.ExternalID == "" {
		return errors.New("validation record missing external_id")
	}
	if r.Status == "" {
		return errors.New("validation record missing status")
	}
	return nil
}

// Validate checks CommitRecord required fields.
func (r CommitRecord) Validate() error {
	if r.Hash == "" {
		return errors.New("commit record missing hash")
	}
	return nil
}

// Decode converts a loosely-typed map produced by an upstream parser into a
// typed record and validates it. RFC3339 strings decode into time fields.
func Decode[T Validator](input map[string]any) (T, error) {
	var out T

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &out,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return out, errors.Wrap(err, "failed to build record decoder")
	}

	if err := decoder.Decode(input); err != nil {
		return out, errors.Wrap(err, "failed to decode record")
	}

	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}
