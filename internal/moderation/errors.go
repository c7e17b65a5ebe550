package moderation

import "errors"

// ErrNotFound is returned when a referenced organization, version, or user
// does not exist.
var ErrNotFound = errors.New("not found")

// ConflictError reports a violated ownership or pending-state invariant:
// duplicate ownership, conflicting pending transfer or creation, duplicate
// pending version, or a decision race lost to another reviewer. The action
// did not happen.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// ValidationError reports malformed input: a bad phone number, a missing
// rejection reason, an unknown transfer target. The attempted state
// transition did not occur.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
