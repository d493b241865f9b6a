package flow

import (
	"strings"

	"github.com/tinywasm/fmt"
)

var (
	ErrInvalidTransition  = fmt.Err("step", "transition", "invalid")  // EN: Step Transition Invalid
	ErrWrongStep          = fmt.Err("step", "not", "active")          // EN: Step Not Active
	ErrSubmissionInFlight = fmt.Err("submission", "in", "progress")   // EN: Submission In Progress
	ErrValidation         = fmt.Err("fields", "invalid")              // EN: Fields Invalid
	errStale              = fmt.Err("submission", "stale")            // EN: Submission Stale
)

// FieldError is a validation failure of one rule on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// ValidationError carries every failed rule of a validation pass.
type ValidationError []FieldError

func (v ValidationError) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (v ValidationError) Is(target error) bool { return target == ErrValidation }
