package bot

import (
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/idobetesh/papertrail/core/telegram/format"
	"github.com/idobetesh/papertrail/core/telegram/keyboard"
	"github.com/idobetesh/papertrail/internal/domain"
	"github.com/idobetesh/papertrail/internal/flow"
)

const helpText = `*Papertrail* keeps your rental paperwork in order.

/receipt — issue a rent receipt
/report — generate a period report
/tenant — onboard a new tenant
/status — show the wizard in progress
/cancel — abort the wizard in progress`

var flowTitles = map[domain.FlowKind]string{
	domain.FlowDocument:   "rent receipt",
	domain.FlowReport:     "report",
	domain.FlowOnboarding: "tenant onboarding",
}

func flowTitle(kind domain.FlowKind) string {
	if t, ok := flowTitles[kind]; ok {
		return t
	}
	return string(kind)
}

// prompt returns the message and keyboard asking for the input the
// session's current step expects.
func prompt(s *domain.Session, tenants []string) (string, *tele.ReplyMarkup) {
	switch s.Flow {
	case domain.FlowDocument:
		return documentPrompt(s, tenants)
	case domain.FlowReport:
		return reportPrompt(s)
	case domain.FlowOnboarding:
		return onboardingPrompt(s)
	}
	return "Something went wrong. Try /help.", nil
}

func documentPrompt(s *domain.Session, tenants []string) (string, *tele.ReplyMarkup) {
	switch s.CurrentStep {
	case flow.StepDocTenant:
		if len(tenants) == 0 {
			return "No tenants on file yet. Onboard one with /tenant first, then retry /receipt.", nil
		}
		btns := make([]keyboard.InlineBtn, 0, len(tenants))
		for _, t := range tenants {
			btns = append(btns, keyboard.InlineBtn{Text: t, Unique: domain.ActionSelectTenant, Data: t})
		}
		kb := keyboard.WithCancel(keyboard.InlineColumn(btns...), domain.ActionCancel)
		return "Who is this receipt for?", kb
	case flow.StepDocAmount:
		return "Enter the amount paid (e.g. `4200` or `4200.50`):", keyboard.CancelOnly(domain.ActionCancel)
	case flow.StepDocDate:
		return "Enter the payment date (e.g. `2026-08-01` or `01.08.2026`):", keyboard.CancelOnly(domain.ActionCancel)
	case flow.StepDocFormat:
		kb := keyboard.WithCancel(keyboard.Inline([]keyboard.InlineBtn{
			{Text: "PDF", Unique: domain.ActionSelectFormat, Data: "pdf"},
			{Text: "PNG", Unique: domain.ActionSelectFormat, Data: "png"},
		}), domain.ActionCancel)
		return "Pick the receipt format:", kb
	}
	return "Something went wrong. Try /cancel and start over.", nil
}

func reportPrompt(s *domain.Session) (string, *tele.ReplyMarkup) {
	switch s.CurrentStep {
	case flow.StepReportType:
		kb := keyboard.WithCancel(keyboard.InlineColumn(
			keyboard.InlineBtn{Text: "📈 Revenue", Unique: domain.ActionSelectType, Data: "revenue"},
			keyboard.InlineBtn{Text: "📉 Expenses", Unique: domain.ActionSelectType, Data: "expenses"},
			keyboard.InlineBtn{Text: "📊 Summary", Unique: domain.ActionSelectType, Data: "summary"},
		), domain.ActionCancel)
		return "Which report do you need?", kb
	case flow.StepReportDate:
		return "Enter the period: a month like `2026-07`, or a range like `2026-07-01 2026-07-31`:",
			keyboard.CancelOnly(domain.ActionCancel)
	case flow.StepReportFormat:
		kb := keyboard.WithCancel(keyboard.Inline([]keyboard.InlineBtn{
			{Text: "PDF", Unique: domain.ActionSelectFormat, Data: "pdf"},
			{Text: "XLSX", Unique: domain.ActionSelectFormat, Data: "xlsx"},
			{Text: "CSV", Unique: domain.ActionSelectFormat, Data: "csv"},
		}), domain.ActionCancel)
		return "Pick the report format:", kb
	}
	return "Something went wrong. Try /cancel and start over.", nil
}

func onboardingPrompt(s *domain.Session) (string, *tele.ReplyMarkup) {
	switch s.CurrentStep {
	case flow.StepObName:
		return "New tenant. What's their full name?", keyboard.CancelOnly(domain.ActionCancel)
	case flow.StepObUnit:
		return "Which unit are they renting?", keyboard.CancelOnly(domain.ActionCancel)
	case flow.StepObRent:
		return "Monthly rent amount?", keyboard.CancelOnly(domain.ActionCancel)
	case flow.StepObEmail:
		kb := keyboard.WithCancel(keyboard.InlineColumn(
			keyboard.InlineBtn{Text: "Skip", Unique: domain.ActionSkip, Data: "skip"},
		), domain.ActionCancel)
		return "Tenant's email? (or skip)", kb
	case flow.StepObConfirm:
		name := format.EscapeMarkdown(s.Fields[flow.FieldTenantName])
		unit := format.EscapeMarkdown(s.Fields[flow.FieldUnit])
		rent := s.Fields[flow.FieldRent]
		email := s.Fields[flow.FieldEmail]
		if email == "" {
			email = "—"
		}
		text := fmt.Sprintf(
			"Save this tenant?\n\n*Name:* %s\n*Unit:* %s\n*Rent:* %s\n*Email:* %s",
			name, unit, rent, format.EscapeMarkdown(email))
		kb := keyboard.Inline([]keyboard.InlineBtn{
			{Text: "✅ Save", Unique: domain.ActionConfirm, Data: "yes"},
			{Text: "❌ Discard", Unique: domain.ActionConfirm, Data: "no"},
		})
		return text, kb
	}
	return "Something went wrong. Try /cancel and start over.", nil
}

func rejectionText(s *domain.Session, reason string) string {
	if reason == "" {
		switch s.CurrentStep {
		case flow.StepDocTenant, flow.StepDocFormat, flow.StepReportType,
			flow.StepReportFormat, flow.StepObConfirm:
			reason = "please use the buttons above"
		default:
			reason = "please reply with text"
		}
	}
	return "Hmm, " + reason + ". Let's try again."
}

func expiredText() string {
	return "That wizard expired. Start over with /receipt, /report or /tenant."
}

func cancelledText(kind domain.FlowKind) string {
	return "Okay, the " + flowTitle(kind) + " wizard is cancelled."
}

func completedText(kind domain.FlowKind) string {
	if kind == domain.FlowOnboarding {
		return "Tenant saved. They'll show up in /receipt from now on."
	}
	return "Done — the " + flowTitle(kind) + " is ready."
}

func failureText(kind domain.FlowKind) string {
	return "Sorry, generating the " + flowTitle(kind) +
		" failed and the wizard was aborted. Please start over."
}

func rateLimitedText(dec domain.RateDecision) string {
	return fmt.Sprintf("Daily generation limit reached. This wizard can't run today; the limit resets at %s.",
		dec.ResetAt.Format("15:04 MST, Jan 2"))
}

func statusText(s *domain.Session) string {
	remaining := time.Until(s.ExpiresAt).Round(time.Minute)
	return fmt.Sprintf("A *%s* wizard is in progress (step: %s, expires in %s).\nSend /cancel to abort it.",
		flowTitle(s.Flow), s.CurrentStep, remaining)
}
