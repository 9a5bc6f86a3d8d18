package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned by session creation when an active
	// session already exists for the (chat, user, flow) key. The caller is
	// expected to cancel the old session and retry; creation never
	// supersedes silently.
	ErrAlreadyActive = errors.New("session already active")

	// ErrSessionNotFound covers both a missing record and a logically
	// expired one.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStepMismatch is the optimistic concurrency guard: the stored
	// current step no longer equals the step the event was validated
	// against. The losing event must be treated as stale, not retried.
	ErrStepMismatch = errors.New("session step mismatch")

	// ErrAlreadyProcessed marks a duplicate inbound event id.
	ErrAlreadyProcessed = errors.New("event already processed")

	// ErrEventShape marks an event whose kind does not match what the
	// current step accepts (e.g. free text where a button press is expected).
	ErrEventShape = errors.New("unexpected event shape for step")

	// ErrStorageUnavailable wraps backing store failures. Callers other
	// than the deduplicator fail closed on it.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError rejects a step payload with a user-facing reason.
// It never escapes to the transport layer; the orchestrator converts it
// into a re-prompt.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Invalid builds a ValidationError with a formatted reason.
func Invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a payload validation failure and
// returns the user-facing reason.
func IsValidation(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}

// GenerationError marks a downstream artifact creation failure. It always
// results in session cancellation plus a user-visible failure message.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// StorageErr wraps a driver error into the retryable storage failure class.
func StorageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
