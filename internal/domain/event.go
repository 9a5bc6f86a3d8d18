package domain

// EventKind classifies an inbound update for the flow engine.
type EventKind string

const (
	// EventStart begins a flow (slash command).
	EventStart EventKind = "start"
	// EventMessage is a free-text continuation.
	EventMessage EventKind = "message"
	// EventCallback is an inline keyboard button press.
	EventCallback EventKind = "callback"
)

// Canonical callback action codes shared by the flows.
const (
	ActionSelectTenant = "select_tenant"
	ActionSelectType   = "select_type"
	ActionSelectFormat = "select_format"
	ActionConfirm      = "confirm"
	ActionSkip         = "skip"
	ActionCancel       = "cancel"
)

// Event is a classified inbound update.
//
// EventID, Action and Value are set for callback events only; EventID is the
// transport-assigned identifier used for idempotent processing.
type Event struct {
	Kind   EventKind
	ChatID int64
	UserID int64

	Text string

	EventID string
	Action  string
	Value   string
}

// CancelRequested reports whether the event is the global cancel edge,
// accepted from every non-terminal step.
func (e Event) CancelRequested() bool {
	switch e.Kind {
	case EventCallback:
		return e.Action == ActionCancel
	case EventMessage:
		return e.Text == "/cancel"
	}
	return false
}
