package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the service, worker and delivery layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrTransientStorage  = errors.New("storage temporarily unavailable")
	ErrIntegrity         = errors.New("stored content failed integrity check")
	ErrInternalExecution = errors.New("internal execution error")
	ErrUnsupportedFormat = errors.New("unsupported report format")
	// ErrClaimLost means the job was re-queued or finalized after this
	// worker claimed it, so the worker may no longer write its outcome.
	ErrClaimLost = errors.New("job claim no longer held")
)

// ValidationError reports the first malformed part of a submission.
// Indexes are zero-based; -1 means the field is not tied to a student or event.
type ValidationError struct {
	StudentIndex int    `json:"student_index"`
	EventIndex   int    `json:"event_index"`
	StudentID    string `json:"student_id,omitempty"`
	Field        string `json:"field"`
	Reason       string `json:"reason"`
}

func (e *ValidationError) Error() string {
	switch {
	case e.StudentIndex < 0:
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
	case e.EventIndex < 0:
		return fmt.Sprintf("validation failed: student[%d] %s: %s", e.StudentIndex, e.Field, e.Reason)
	default:
		return fmt.Sprintf("validation failed: student[%d] event[%d] %s: %s", e.StudentIndex, e.EventIndex, e.Field, e.Reason)
	}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransientStorage wraps err so that errors.Is(err, ErrTransientStorage) holds.
func TransientStorage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStorage, err)
}
