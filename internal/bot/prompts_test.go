package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idobetesh/papertrail/internal/domain"
	"github.com/idobetesh/papertrail/internal/flow"
)

func sessionAt(kind domain.FlowKind, step domain.Step, fields domain.Fields) *domain.Session {
	if fields == nil {
		fields = domain.Fields{}
	}
	return &domain.Session{
		ID:          "s-1",
		ChatID:      10,
		UserID:      20,
		Flow:        kind,
		Status:      domain.StatusActive,
		CurrentStep: step,
		Fields:      fields,
	}
}

func TestDocumentPromptListsTenants(t *testing.T) {
	s := sessionAt(domain.FlowDocument, flow.StepDocTenant, nil)

	text, kb := prompt(s, []string{"Dana Levi", "Avi Cohen"})

	assert.Contains(t, text, "Who is this receipt for?")
	require.NotNil(t, kb)
	// one row per tenant plus the cancel row
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "Dana Levi", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "Avi Cohen", kb.InlineKeyboard[1][0].Text)
	assert.Contains(t, kb.InlineKeyboard[2][0].Text, "Cancel")
}

func TestDocumentPromptWithoutTenants(t *testing.T) {
	s := sessionAt(domain.FlowDocument, flow.StepDocTenant, nil)

	text, kb := prompt(s, nil)

	assert.Contains(t, text, "/tenant")
	assert.Nil(t, kb)
}

func TestTextStepsKeepCancelButton(t *testing.T) {
	for _, tc := range []struct {
		kind domain.FlowKind
		step domain.Step
	}{
		{domain.FlowDocument, flow.StepDocAmount},
		{domain.FlowDocument, flow.StepDocDate},
		{domain.FlowReport, flow.StepReportDate},
		{domain.FlowOnboarding, flow.StepObName},
		{domain.FlowOnboarding, flow.StepObRent},
	} {
		_, kb := prompt(sessionAt(tc.kind, tc.step, nil), nil)
		require.NotNil(t, kb, "step %s", tc.step)
		last := kb.InlineKeyboard[len(kb.InlineKeyboard)-1]
		assert.Contains(t, last[0].Text, "Cancel", "step %s", tc.step)
	}
}

func TestOnboardingConfirmSummary(t *testing.T) {
	s := sessionAt(domain.FlowOnboarding, flow.StepObConfirm, domain.Fields{
		flow.FieldTenantName: "Dana Levi",
		flow.FieldUnit:       "4B",
		flow.FieldRent:       "5200.00",
	})

	text, kb := prompt(s, nil)

	assert.Contains(t, text, "Dana Levi")
	assert.Contains(t, text, "4B")
	assert.Contains(t, text, "5200.00")
	// skipped email renders as a dash, not an empty line
	assert.Contains(t, text, "—")
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Len(t, kb.InlineKeyboard[0], 2)
}

func TestRejectionTextPerStepShape(t *testing.T) {
	button := sessionAt(domain.FlowReport, flow.StepReportType, nil)
	assert.Contains(t, rejectionText(button, ""), "buttons")

	text := sessionAt(domain.FlowDocument, flow.StepDocAmount, nil)
	assert.Contains(t, rejectionText(text, ""), "text")

	withReason := rejectionText(text, "amount must be positive")
	assert.Contains(t, withReason, "amount must be positive")
}

func TestCompletedTextPerFlow(t *testing.T) {
	assert.Contains(t, completedText(domain.FlowOnboarding), "/receipt")
	assert.Contains(t, strings.ToLower(completedText(domain.FlowDocument)), "receipt")
	assert.Contains(t, strings.ToLower(completedText(domain.FlowReport)), "report")
}
