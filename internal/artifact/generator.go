// Package artifact renders the deliverables of completed flows. The
// in-tree generator produces plain-text documents; richer renderers can
// replace it behind the same interface.
package artifact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/idobetesh/papertrail/internal/domain"
	"github.com/idobetesh/papertrail/internal/engine"
	"github.com/idobetesh/papertrail/internal/flow"
)

// TextGenerator renders receipts and reports as UTF-8 text files.
type TextGenerator struct {
	// BusinessName heads every rendered document.
	BusinessName string

	now func() time.Time
}

// NewTextGenerator builds a generator stamping documents with the given
// business name.
func NewTextGenerator(businessName string) *TextGenerator {
	return &TextGenerator{BusinessName: businessName, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (g *TextGenerator) WithClock(now func() time.Time) *TextGenerator {
	g.now = now
	return g
}

// Generate renders the artifact for a completed session. Onboarding
// produces no file; its confirmation is message-only.
func (g *TextGenerator) Generate(_ context.Context, s *domain.Session) (*engine.Artifact, error) {
	switch s.Flow {
	case domain.FlowDocument:
		return g.receipt(s)
	case domain.FlowReport:
		return g.report(s)
	case domain.FlowOnboarding:
		return nil, nil
	}
	return nil, fmt.Errorf("artifact: no renderer for flow %q", s.Flow)
}

func (g *TextGenerator) receipt(s *domain.Session) (*engine.Artifact, error) {
	tenant := s.Fields[flow.FieldTenant]
	amount := s.Fields[flow.FieldAmount]
	date := s.Fields[flow.FieldDate]
	format := s.Fields[flow.FieldFormat]
	if tenant == "" || amount == "" || date == "" {
		return nil, fmt.Errorf("artifact: receipt fields incomplete for session %s", s.ID)
	}

	var b strings.Builder
	head(&b, g.BusinessName, "RENT RECEIPT")
	fmt.Fprintf(&b, "Receipt no:   %s\n", s.ID)
	fmt.Fprintf(&b, "Tenant:       %s\n", tenant)
	fmt.Fprintf(&b, "Payment date: %s\n", date)
	fmt.Fprintf(&b, "Amount:       %s\n", amount)
	fmt.Fprintf(&b, "\nIssued %s\n", g.now().UTC().Format("2006-01-02 15:04 MST"))

	return &engine.Artifact{
		Name:    fmt.Sprintf("receipt-%s.%s.txt", date, format),
		MIME:    "text/plain; charset=utf-8",
		Content: []byte(b.String()),
		Caption: fmt.Sprintf("Rent receipt for %s, %s", tenant, date),
	}, nil
}

func (g *TextGenerator) report(s *domain.Session) (*engine.Artifact, error) {
	kind := s.Fields[flow.FieldReportType]
	from := s.Fields[flow.FieldPeriodFrom]
	to := s.Fields[flow.FieldPeriodTo]
	format := s.Fields[flow.FieldFormat]
	if kind == "" || from == "" || to == "" {
		return nil, fmt.Errorf("artifact: report fields incomplete for session %s", s.ID)
	}

	var b strings.Builder
	head(&b, g.BusinessName, strings.ToUpper(kind)+" REPORT")
	fmt.Fprintf(&b, "Period: %s .. %s\n", from, to)
	fmt.Fprintf(&b, "\nGenerated %s\n", g.now().UTC().Format("2006-01-02 15:04 MST"))

	return &engine.Artifact{
		Name:    fmt.Sprintf("report-%s-%s.%s.txt", kind, from, format),
		MIME:    "text/plain; charset=utf-8",
		Content: []byte(b.String()),
		Caption: fmt.Sprintf("%s report, %s .. %s", kind, from, to),
	}, nil
}

func head(b *strings.Builder, business, title string) {
	if business != "" {
		fmt.Fprintf(b, "%s\n", business)
	}
	fmt.Fprintf(b, "%s\n", title)
	b.WriteString(strings.Repeat("=", len(title)) + "\n\n")
}
