package engine

import (
	"context"
	"time"

	"github.com/idobetesh/papertrail/internal/domain"
)

// SessionRepository persists flow sessions. Implementations must treat
// expired rows as absent and enforce the single-active-session rule per
// (chat, user, flow) key.
type SessionRepository interface {
	// Create inserts a new active session. Returns domain.ErrAlreadyActive
	// when an unexpired active session holds the key.
	Create(ctx context.Context, s *domain.Session) error

	// GetActive returns the unexpired active session for the key, or
	// domain.ErrSessionNotFound.
	GetActive(ctx context.Context, chatID, userID int64, kind domain.FlowKind) (*domain.Session, error)

	// GetActiveAny resolves a continuation event that carries no flow kind:
	// it returns the single unexpired active session of the (chat, user)
	// pair, or domain.ErrSessionNotFound.
	GetActiveAny(ctx context.Context, chatID, userID int64) (*domain.Session, error)

	// Update persists step, fields, status and deadline changes, guarded by
	// the step the event was validated against. Zero rows updated means the
	// session moved concurrently (domain.ErrStepMismatch) or is gone
	// (domain.ErrSessionNotFound).
	Update(ctx context.Context, s *domain.Session, expected domain.Step) error

	// CancelActive unconditionally cancels the active session for the key,
	// if any. Used by start supersede and /cancel.
	CancelActive(ctx context.Context, chatID, userID int64, kind domain.FlowKind) error

	// PurgeExpired deletes up to limit expired or terminal rows past their
	// retention and reports how many went away.
	PurgeExpired(ctx context.Context, limit int) (int, error)
}

// Deduplicator claims inbound event ids exactly once per retention window.
type Deduplicator interface {
	// Claim records the event id. Returns domain.ErrAlreadyProcessed when the
	// id was already claimed inside its window. A wrapped
	// domain.ErrStorageUnavailable means the caller should fail open.
	Claim(ctx context.Context, eventID string, ttl time.Duration) error

	// PurgeExpired deletes up to limit markers past their window.
	PurgeExpired(ctx context.Context, limit int) (int, error)
}

// RateGate enforces the per-chat daily generation quota.
type RateGate interface {
	// Check reports whether the chat may run one more generation today.
	Check(ctx context.Context, chatID int64) (domain.RateDecision, error)

	// Record consumes one unit of today's quota. Called only after a
	// successful generation.
	Record(ctx context.Context, chatID int64) error
}

// Artifact is the product of a completed generation flow.
type Artifact struct {
	Name    string
	MIME    string
	Content []byte
	Caption string
}

// Generator turns a completed session's fields into a deliverable artifact.
type Generator interface {
	Generate(ctx context.Context, s *domain.Session) (*Artifact, error)
}

// Effects is everything the orchestrator may say back to the chat while
// handling one event. The transport layer binds an implementation to the
// inbound update; tests substitute a recorder.
type Effects interface {
	// SendPrompt asks the user for the input the session's current step expects.
	SendPrompt(ctx context.Context, s *domain.Session) error

	// SendRejection re-prompts the current step with a reason the payload
	// was not accepted.
	SendRejection(ctx context.Context, s *domain.Session, reason string) error

	// SendExpired tells the user their session lapsed and how to restart.
	SendExpired(ctx context.Context) error

	// SendCancelled confirms a cancellation.
	SendCancelled(ctx context.Context, kind domain.FlowKind) error

	// SendCompleted delivers the generated artifact, or a plain confirmation
	// when the flow produces none.
	SendCompleted(ctx context.Context, s *domain.Session, art *Artifact) error

	// SendFailure reports a generation failure after the session was cancelled.
	SendFailure(ctx context.Context, kind domain.FlowKind) error

	// SendRateLimited tells the user the daily quota is spent.
	SendRateLimited(ctx context.Context, dec domain.RateDecision) error

	// AckCallback answers the callback query so the client stops its spinner.
	// No-op for message events.
	AckCallback(ctx context.Context) error
}
