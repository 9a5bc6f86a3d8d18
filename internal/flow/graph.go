// Package flow defines the step graphs for the bot's wizards and the pure
// machine that advances them. Nothing in this package performs I/O: given
// the same (step, fields, event) it always returns the same result, which
// keeps it unit-testable without a store or transport.
package flow

import (
	"errors"
	"fmt"

	"github.com/idobetesh/papertrail/internal/domain"
)

// ErrUnknownStep signals a session whose stored step is not part of the
// graph. It can only happen after an incompatible deploy.
var ErrUnknownStep = errors.New("unknown step for flow")

// Transition is the outcome of an accepted event.
type Transition struct {
	// Fields is the complete updated field set to persist.
	Fields domain.Fields
	// Next is the step the session moves to. Meaningless when Terminal is set.
	Next domain.Step
	// Terminal is StatusCompleted or StatusCancelled for ending
	// transitions, empty otherwise.
	Terminal domain.Status
}

// ValidateFunc checks the event payload against the current fields and
// returns the field updates the step owns. It must not mutate its input.
type ValidateFunc func(ev domain.Event, fields domain.Fields) (domain.Fields, error)

// StepSpec describes one node of a flow graph.
type StepSpec struct {
	// Accepts lists the event shapes the step consumes.
	Accepts []domain.EventKind
	// Validate transforms the payload into field updates.
	Validate ValidateFunc
	// Next computes the following step from the updated fields.
	// A nil Next marks the final step: successful validation ends the flow.
	Next func(fields domain.Fields) domain.Step
	// Outcome picks the terminal status of a final step from its fields.
	// Nil means StatusCompleted. Only consulted when Next is nil.
	Outcome func(fields domain.Fields) domain.Status
}

// Graph is one wizard definition: an initial step plus a step table.
type Graph struct {
	Kind    domain.FlowKind
	Initial domain.Step
	// RateGated marks flows whose terminal generation work consumes the
	// per-chat daily quota.
	RateGated bool

	steps map[domain.Step]StepSpec
	order map[domain.Step]int
}

// NewGraph builds a graph from steps in declaration order. The order is
// the monotonic progression tests assert against.
func NewGraph(kind domain.FlowKind, rateGated bool, names []domain.Step, specs map[domain.Step]StepSpec) *Graph {
	if len(names) == 0 {
		panic("flow: graph needs at least one step")
	}
	order := make(map[domain.Step]int, len(names))
	for i, n := range names {
		if _, ok := specs[n]; !ok {
			panic(fmt.Sprintf("flow: step %q declared but not specified", n))
		}
		order[n] = i
	}
	return &Graph{
		Kind:      kind,
		Initial:   names[0],
		RateGated: rateGated,
		steps:     specs,
		order:     order,
	}
}

// Steps returns the declared steps in graph order.
func (g *Graph) Steps() []domain.Step {
	out := make([]domain.Step, len(g.order))
	for s, i := range g.order {
		out[i] = s
	}
	return out
}

// Order returns the position of the step in the graph, or -1 if unknown.
func (g *Graph) Order(s domain.Step) int {
	if i, ok := g.order[s]; ok {
		return i
	}
	return -1
}

// Advance validates the event against the current step and computes the
// transition. Rejections are domain.ErrEventShape (wrong shape for the
// step) or a *domain.ValidationError (payload failed a flow rule); both
// leave the caller's session untouched.
func (g *Graph) Advance(current domain.Step, fields domain.Fields, ev domain.Event) (Transition, error) {
	spec, ok := g.steps[current]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s/%s", ErrUnknownStep, g.Kind, current)
	}

	// Global cancel edge from every non-terminal step.
	if ev.CancelRequested() {
		return Transition{Fields: fields.Clone(), Next: current, Terminal: domain.StatusCancelled}, nil
	}

	if !accepts(spec.Accepts, ev.Kind) {
		return Transition{}, domain.ErrEventShape
	}

	updated, err := spec.Validate(ev, fields.Clone())
	if err != nil {
		return Transition{}, err
	}

	if spec.Next == nil {
		status := domain.StatusCompleted
		if spec.Outcome != nil {
			status = spec.Outcome(updated)
		}
		return Transition{Fields: updated, Terminal: status}, nil
	}
	next := spec.Next(updated)
	if _, ok := g.steps[next]; !ok {
		return Transition{}, fmt.Errorf("%w: %s/%s", ErrUnknownStep, g.Kind, next)
	}
	return Transition{Fields: updated, Next: next}, nil
}

func accepts(kinds []domain.EventKind, k domain.EventKind) bool {
	for _, a := range kinds {
		if a == k {
			return true
		}
	}
	return false
}

// requireAction rejects callbacks whose action code does not belong to the
// step; unknown variants are a validation failure, never a crash.
func requireAction(ev domain.Event, want string) error {
	if ev.Kind == domain.EventCallback && ev.Action != want {
		return domain.Invalid("unexpected action %q", ev.Action)
	}
	return nil
}

// Registry returns all flow graphs keyed by kind.
func Registry() map[domain.FlowKind]*Graph {
	return map[domain.FlowKind]*Graph{
		domain.FlowDocument:   Document(),
		domain.FlowReport:     Report(),
		domain.FlowOnboarding: Onboarding(),
	}
}
