package domain

import "time"

// FlowKind identifies one of the wizard definitions the bot can run.
type FlowKind string

const (
	// FlowDocument is the rent receipt generation wizard.
	FlowDocument FlowKind = "document"
	// FlowReport is the periodic report generation wizard.
	FlowReport FlowKind = "report"
	// FlowOnboarding is the tenant registration wizard.
	FlowOnboarding FlowKind = "onboarding"
)

// Kinds lists every flow the engine knows.
func Kinds() []FlowKind {
	return []FlowKind{FlowDocument, FlowReport, FlowOnboarding}
}

// Status is the lifecycle state of a session. Terminal states are immutable.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Step is a named position in a flow's graph where a specific kind of
// inbound event is expected next.
type Step string

// Fields is the open, flow-specific mapping of collected wizard data.
// Each step writes only the keys it owns.
type Fields map[string]string

// Clone returns an independent copy so pure code never aliases stored state.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f)+2)
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Session is the only mutable state for one in-progress flow instance.
type Session struct {
	ID          string   `db:"id"`
	ChatID      int64    `db:"chat_id"`
	UserID      int64    `db:"user_id"`
	Flow        FlowKind `db:"flow_kind"`
	Status      Status   `db:"status"`
	CurrentStep Step     `db:"current_step"`
	Fields      Fields   `db:"-"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Expired reports whether the session passed its sliding idle timeout.
// An expired session must be treated as absent by every reader.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Terminal reports whether the session reached completed or cancelled.
func (s *Session) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// DedupMarker proves a specific inbound event id has already been handled.
type DedupMarker struct {
	EventID     string    `db:"event_id"`
	ProcessedAt time.Time `db:"processed_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// RateDecision is the answer of the daily quota gate for one chat.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}
