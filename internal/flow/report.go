package flow

import (
	"strings"

	"github.com/idobetesh/papertrail/internal/domain"
)

// Report flow steps: choose the report type, pick the period, choose the
// output format. Generation happens on the final step, so the flow is
// rate gated like the document one.
const (
	StepReportType   domain.Step = "report_type"
	StepReportDate   domain.Step = "report_date"
	StepReportFormat domain.Step = "report_format"
)

// Field keys owned by the report flow.
const (
	FieldReportType = "report_type"
	FieldPeriodFrom = "period_from"
	FieldPeriodTo   = "period_to"
)

var (
	reportTypes   = map[string]struct{}{"revenue": {}, "expenses": {}, "summary": {}}
	reportFormats = map[string]struct{}{"pdf": {}, "xlsx": {}, "csv": {}}
)

// Report builds the report wizard graph.
func Report() *Graph {
	steps := []domain.Step{StepReportType, StepReportDate, StepReportFormat}
	return NewGraph(domain.FlowReport, true, steps, map[domain.Step]StepSpec{
		StepReportType: {
			Accepts: []domain.EventKind{domain.EventCallback},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				if err := requireAction(ev, domain.ActionSelectType); err != nil {
					return nil, err
				}
				if _, ok := reportTypes[ev.Value]; !ok {
					return nil, domain.Invalid("unknown report type %q", ev.Value)
				}
				fields[FieldReportType] = ev.Value
				return fields, nil
			},
			Next: func(domain.Fields) domain.Step { return StepReportDate },
		},
		StepReportDate: {
			Accepts: []domain.EventKind{domain.EventMessage},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				from, to, err := parsePeriod(ev.Text)
				if err != nil {
					return nil, err
				}
				fields[FieldPeriodFrom] = from
				fields[FieldPeriodTo] = to
				return fields, nil
			},
			Next: func(domain.Fields) domain.Step { return StepReportFormat },
		},
		StepReportFormat: {
			Accepts: []domain.EventKind{domain.EventCallback},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				if err := requireAction(ev, domain.ActionSelectFormat); err != nil {
					return nil, err
				}
				if _, ok := reportFormats[ev.Value]; !ok {
					return nil, domain.Invalid("unsupported format %q", ev.Value)
				}
				fields[FieldFormat] = ev.Value
				return fields, nil
			},
		},
	})
}

// parsePeriod accepts either a whole month ("2025-07") or an explicit
// "<from> <to>" date range and returns the inclusive bounds as dates.
func parsePeriod(input string) (from, to string, err error) {
	s := strings.TrimSpace(input)
	if month, ok := parseMonth(s); ok {
		last := month.AddDate(0, 1, -1)
		return month.Format("2006-01-02"), last.Format("2006-01-02"), nil
	}
	if f, t, ok := parseDateRange(s); ok {
		return f.Format("2006-01-02"), t.Format("2006-01-02"), nil
	}
	return "", "", domain.Invalid("period %q: want YYYY-MM or two dates", s)
}
