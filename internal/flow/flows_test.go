package flow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idobetesh/papertrail/internal/domain"
)

func msg(text string) domain.Event {
	return domain.Event{Kind: domain.EventMessage, Text: text}
}

func cb(action, value string) domain.Event {
	return domain.Event{Kind: domain.EventCallback, Action: action, Value: value, EventID: "cb-1"}
}

// advance is a test helper that walks one accepted step.
func advance(t *testing.T, g *Graph, step domain.Step, fields domain.Fields, ev domain.Event) Transition {
	t.Helper()
	tr, err := g.Advance(step, fields, ev)
	require.NoError(t, err)
	return tr
}

func TestDocumentHappyPath(t *testing.T) {
	g := Document()
	require.Equal(t, StepDocTenant, g.Initial)
	require.True(t, g.RateGated)

	tr := advance(t, g, StepDocTenant, domain.Fields{}, cb(domain.ActionSelectTenant, "t-17"))
	require.Equal(t, StepDocAmount, tr.Next)
	assert.Equal(t, "t-17", tr.Fields[FieldTenant])

	tr = advance(t, g, tr.Next, tr.Fields, msg("4250,50"))
	require.Equal(t, StepDocDate, tr.Next)
	assert.Equal(t, "4250.50", tr.Fields[FieldAmount])

	tr = advance(t, g, tr.Next, tr.Fields, msg("03.08.2026"))
	require.Equal(t, StepDocFormat, tr.Next)
	assert.Equal(t, "2026-08-03", tr.Fields[FieldDate])

	tr = advance(t, g, tr.Next, tr.Fields, cb(domain.ActionSelectFormat, "pdf"))
	assert.Equal(t, domain.StatusCompleted, tr.Terminal)
	assert.Equal(t, "pdf", tr.Fields[FieldFormat])
}

func TestDocumentAmountValidation(t *testing.T) {
	g := Document()
	cases := []string{"", "abc", "0", "-10", "1000001"}
	for _, in := range cases {
		_, err := g.Advance(StepDocAmount, domain.Fields{}, msg(in))
		if _, ok := domain.IsValidation(err); !ok {
			t.Fatalf("amount %q: want validation error, got %v", in, err)
		}
	}
}

func TestDocumentWrongEventShape(t *testing.T) {
	g := Document()

	// Free text where a button press is expected.
	_, err := g.Advance(StepDocTenant, domain.Fields{}, msg("Alice"))
	require.ErrorIs(t, err, domain.ErrEventShape)

	// Button press where free text is expected.
	_, err = g.Advance(StepDocAmount, domain.Fields{}, cb(domain.ActionSelectFormat, "pdf"))
	require.ErrorIs(t, err, domain.ErrEventShape)
}

func TestDocumentForeignAction(t *testing.T) {
	g := Document()
	_, err := g.Advance(StepDocTenant, domain.Fields{}, cb(domain.ActionSelectFormat, "pdf"))
	_, ok := domain.IsValidation(err)
	require.True(t, ok, "foreign action must be a validation failure, got %v", err)
}

func TestReportHappyPathMonth(t *testing.T) {
	g := Report()

	tr := advance(t, g, g.Initial, domain.Fields{}, cb(domain.ActionSelectType, "revenue"))
	require.Equal(t, StepReportDate, tr.Next)

	tr = advance(t, g, tr.Next, tr.Fields, msg("2026-02"))
	require.Equal(t, StepReportFormat, tr.Next)
	assert.Equal(t, "2026-02-01", tr.Fields[FieldPeriodFrom])
	assert.Equal(t, "2026-02-28", tr.Fields[FieldPeriodTo])

	tr = advance(t, g, tr.Next, tr.Fields, cb(domain.ActionSelectFormat, "xlsx"))
	assert.Equal(t, domain.StatusCompleted, tr.Terminal)
}

func TestReportDateRange(t *testing.T) {
	g := Report()

	tr := advance(t, g, StepReportDate, domain.Fields{}, msg("2026-01-15 2026-03-01"))
	assert.Equal(t, "2026-01-15", tr.Fields[FieldPeriodFrom])
	assert.Equal(t, "2026-03-01", tr.Fields[FieldPeriodTo])

	// Reversed bounds are rejected.
	_, err := g.Advance(StepReportDate, domain.Fields{}, msg("2026-03-01 2026-01-15"))
	_, ok := domain.IsValidation(err)
	require.True(t, ok)
}

func TestReportUnknownType(t *testing.T) {
	g := Report()
	_, err := g.Advance(StepReportType, domain.Fields{}, cb(domain.ActionSelectType, "profits"))
	_, ok := domain.IsValidation(err)
	require.True(t, ok)
}

func TestOnboardingHappyPath(t *testing.T) {
	g := Onboarding()
	require.False(t, g.RateGated)

	tr := advance(t, g, g.Initial, domain.Fields{}, msg("  Dana Levi "))
	require.Equal(t, StepObUnit, tr.Next)
	assert.Equal(t, "Dana Levi", tr.Fields[FieldTenantName])

	tr = advance(t, g, tr.Next, tr.Fields, msg("12B"))
	tr = advance(t, g, tr.Next, tr.Fields, msg("5600"))
	require.Equal(t, StepObEmail, tr.Next)
	assert.Equal(t, "5600.00", tr.Fields[FieldRent])

	tr = advance(t, g, tr.Next, tr.Fields, msg("dana@example.com"))
	require.Equal(t, StepObConfirm, tr.Next)
	assert.Equal(t, "dana@example.com", tr.Fields[FieldEmail])

	tr = advance(t, g, tr.Next, tr.Fields, cb(domain.ActionConfirm, "yes"))
	assert.Equal(t, domain.StatusCompleted, tr.Terminal)
}

func TestOnboardingEmailSkip(t *testing.T) {
	g := Onboarding()

	tr := advance(t, g, StepObEmail, domain.Fields{FieldEmail: "stale@example.com"}, cb(domain.ActionSkip, ""))
	require.Equal(t, StepObConfirm, tr.Next)
	_, present := tr.Fields[FieldEmail]
	assert.False(t, present, "skip must clear any previously collected email")
}

func TestOnboardingBadEmail(t *testing.T) {
	g := Onboarding()
	_, err := g.Advance(StepObEmail, domain.Fields{}, msg("not-an-email"))
	_, ok := domain.IsValidation(err)
	require.True(t, ok)
}

func TestOnboardingNameLength(t *testing.T) {
	g := Onboarding()
	for _, in := range []string{"A", "", strings.Repeat("x", maxNameRunes+1)} {
		_, err := g.Advance(StepObName, domain.Fields{}, msg(in))
		_, ok := domain.IsValidation(err)
		require.True(t, ok, "name %q", in)
	}
}

func TestOnboardingDecline(t *testing.T) {
	g := Onboarding()
	tr := advance(t, g, StepObConfirm, domain.Fields{}, cb(domain.ActionConfirm, "no"))
	assert.Equal(t, domain.StatusCancelled, tr.Terminal)
}

func TestCancelFromEveryStep(t *testing.T) {
	for kind, g := range Registry() {
		for _, step := range g.Steps() {
			tr, err := g.Advance(step, domain.Fields{"k": "v"}, msg("/cancel"))
			require.NoError(t, err, "%s/%s", kind, step)
			assert.Equal(t, domain.StatusCancelled, tr.Terminal, "%s/%s", kind, step)

			tr, err = g.Advance(step, domain.Fields{}, cb(domain.ActionCancel, ""))
			require.NoError(t, err, "%s/%s", kind, step)
			assert.Equal(t, domain.StatusCancelled, tr.Terminal, "%s/%s", kind, step)
		}
	}
}

func TestGraphOrderIsMonotonic(t *testing.T) {
	// Every non-terminal transition in every graph must strictly increase
	// the step order.
	walks := map[domain.FlowKind][]domain.Event{
		domain.FlowDocument: {
			cb(domain.ActionSelectTenant, "t-1"),
			msg("1200"),
			msg("2026-08-01"),
			cb(domain.ActionSelectFormat, "png"),
		},
		domain.FlowReport: {
			cb(domain.ActionSelectType, "summary"),
			msg("2026-07"),
			cb(domain.ActionSelectFormat, "csv"),
		},
		domain.FlowOnboarding: {
			msg("Dana Levi"),
			msg("12B"),
			msg("5600"),
			cb(domain.ActionSkip, ""),
			cb(domain.ActionConfirm, "yes"),
		},
	}

	for kind, events := range walks {
		g := Registry()[kind]
		step := g.Initial
		fields := domain.Fields{}
		for i, ev := range events {
			tr, err := g.Advance(step, fields, ev)
			require.NoError(t, err, "%s event %d", kind, i)
			if tr.Terminal != "" {
				require.Equal(t, len(events)-1, i, "%s ended early", kind)
				break
			}
			require.Greater(t, g.Order(tr.Next), g.Order(step), "%s: %s -> %s", kind, step, tr.Next)
			step, fields = tr.Next, tr.Fields
		}
	}
}

func TestAdvanceDoesNotMutateInputFields(t *testing.T) {
	g := Document()
	in := domain.Fields{FieldTenant: "t-1"}
	_, err := g.Advance(StepDocAmount, in, msg("900"))
	require.NoError(t, err)
	assert.Equal(t, domain.Fields{FieldTenant: "t-1"}, in)
}

func TestStepValuesUniqueAcrossFlows(t *testing.T) {
	// Step values are merged across flows in switch statements (reply
	// shaping in the bot package), so a value shared by two graphs would
	// not compile there. Keep every step globally unique.
	seen := map[domain.Step]domain.FlowKind{}
	for kind, g := range Registry() {
		for _, step := range g.Steps() {
			if prev, ok := seen[step]; ok {
				t.Fatalf("step %q declared by both %s and %s", step, prev, kind)
			}
			seen[step] = kind
		}
	}
}

func TestUnknownStep(t *testing.T) {
	g := Report()
	_, err := g.Advance("nope", domain.Fields{}, msg("x"))
	require.ErrorIs(t, err, ErrUnknownStep)
}
