package contract

import (
	"fmt"

	"github.com/fyrsmithlabs/qchi/internal/roles"
)

// PreviewLimit bounds the raw output excerpt attached to extraction errors.
const PreviewLimit = 500

// Stage identifies which half of the pipeline rejected the output.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
)

// Error describes why a role's raw output did not yield a Message.
type Error struct {
	Role    roles.Role
	Stage   Stage
	Reason  string
	Preview string
}

func (e *Error) Error() string {
	if e.Stage == StageExtract {
		return fmt.Sprintf("%s produced invalid JSON: %s. Output preview: %s", e.Role, e.Reason, e.Preview)
	}
	return fmt.Sprintf("%s JSON validation failed: %s. Output preview: %s", e.Role, e.Reason, e.Preview)
}

// Parse runs Extract then Validate for raw output from role.
func Parse(raw string, role roles.Role) (*Message, error) {
	candidate, err := Extract(raw)
	if err != nil {
		return nil, &Error{
			Role:    role,
			Stage:   StageExtract,
			Reason:  err.Error(),
			Preview: Compact(raw, PreviewLimit),
		}
	}
	outcome := Validate(candidate, role)
	msg, ok := outcome.Message()
	if !ok {
		return nil, &Error{
			Role:    role,
			Stage:   StageValidate,
			Reason:  outcome.Reason(),
			Preview: Compact(raw, PreviewLimit),
		}
	}
	return msg, nil
}
