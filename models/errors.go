package models

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicate          = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("permission denied")
	ErrMedia              = errors.New("media error")
	ErrProcessing         = errors.New("processing failed")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError reports malformed input for a named field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DuplicateError reports a uniqueness violation.
type DuplicateError struct {
	Entity string
	Value  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Value)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// NotFoundError reports a missing primary key.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AuthorizationError reports an actor lacking permission for an action.
type AuthorizationError struct {
	ActorID int64 // 0 when anonymous
	Action  string
}

func (e *AuthorizationError) Error() string {
	if e.ActorID == 0 {
		return fmt.Sprintf("anonymous actor may not %s", e.Action)
	}
	return fmt.Sprintf("user %d may not %s", e.ActorID, e.Action)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

// MediaError reports a rejected or failed upload.
type MediaError struct {
	Reason string
	Err    error
}

func (e *MediaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media: %s: %v", e.Reason, e.Err)
	}
	return "media: " + e.Reason
}

func (e *MediaError) Unwrap() error        { return e.Err }
func (e *MediaError) Is(target error) bool { return target == ErrMedia }

// ProcessingError reports a failure in the avatar crop/thumbnail pipeline.
type ProcessingError struct {
	Step string
	Err  error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("avatar %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("avatar %s failed", e.Step)
}

func (e *ProcessingError) Unwrap() error        { return e.Err }
func (e *ProcessingError) Is(target error) bool { return target == ErrProcessing }

// UserMessage maps an error to the short text shown to end users. Internal
// errors collapse to a generic message.
func UserMessage(err error) string {
	var (
		ve *ValidationError
		de *DuplicateError
		ae *AuthorizationError
		me *MediaError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "Invalid " + ve.Field + ": " + ve.Reason + "."
	case errors.As(err, &de):
		return fmt.Sprintf("That %s is already taken.", de.Entity)
	case errors.Is(err, ErrNotFound):
		return "The requested item does not exist."
	case errors.As(err, &ae) && ae.ActorID == 0:
		return "Please log in first."
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to do that."
	case errors.Is(err, ErrInvalidCredentials):
		return "Incorrect username or password."
	case errors.As(err, &me):
		return "Media upload failed: " + me.Reason + "."
	case errors.Is(err, ErrProcessing):
		return "Avatar upload or crop failed."
	default:
		return "Something went wrong. Please try again."
	}
}
