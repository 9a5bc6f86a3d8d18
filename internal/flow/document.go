package flow

import (
	"strconv"
	"strings"

	"github.com/idobetesh/papertrail/internal/domain"
)

// Document flow steps: pick the tenant, enter the amount and payment date,
// choose the output format. The last step triggers receipt generation and
// is therefore rate gated.
const (
	StepDocTenant domain.Step = "doc_tenant"
	StepDocAmount domain.Step = "doc_amount"
	StepDocDate   domain.Step = "doc_date"
	StepDocFormat domain.Step = "doc_format"
)

// Field keys owned by the document flow.
const (
	FieldTenant = "tenant"
	FieldAmount = "amount"
	FieldDate   = "date"
	FieldFormat = "format"
)

const maxReceiptAmount = 1_000_000

var documentFormats = map[string]struct{}{"pdf": {}, "png": {}}

// Document builds the rent receipt wizard graph.
func Document() *Graph {
	steps := []domain.Step{StepDocTenant, StepDocAmount, StepDocDate, StepDocFormat}
	return NewGraph(domain.FlowDocument, true, steps, map[domain.Step]StepSpec{
		StepDocTenant: {
			Accepts: []domain.EventKind{domain.EventCallback},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				if err := requireAction(ev, domain.ActionSelectTenant); err != nil {
					return nil, err
				}
				tenant := strings.TrimSpace(ev.Value)
				if tenant == "" {
					return nil, domain.Invalid("empty tenant selection")
				}
				fields[FieldTenant] = tenant
				return fields, nil
			},
			Next: func(domain.Fields) domain.Step { return StepDocAmount },
		},
		StepDocAmount: {
			Accepts: []domain.EventKind{domain.EventMessage},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				amount, err := parseAmount(ev.Text)
				if err != nil {
					return nil, err
				}
				fields[FieldAmount] = amount
				return fields, nil
			},
			Next: func(domain.Fields) domain.Step { return StepDocDate },
		},
		StepDocDate: {
			Accepts: []domain.EventKind{domain.EventMessage},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				t, ok := parseFlexibleDate(ev.Text)
				if !ok {
					return nil, domain.Invalid("unrecognized date %q", strings.TrimSpace(ev.Text))
				}
				fields[FieldDate] = t.Format("2006-01-02")
				return fields, nil
			},
			Next: func(domain.Fields) domain.Step { return StepDocFormat },
		},
		StepDocFormat: {
			Accepts: []domain.EventKind{domain.EventCallback},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				if err := requireAction(ev, domain.ActionSelectFormat); err != nil {
					return nil, err
				}
				if _, ok := documentFormats[ev.Value]; !ok {
					return nil, domain.Invalid("unsupported format %q", ev.Value)
				}
				fields[FieldFormat] = ev.Value
				return fields, nil
			},
			// Final step: successful validation completes the flow.
		},
	})
}

// parseAmount accepts a positive decimal up to the receipt ceiling and
// normalizes it to two fraction digits.
func parseAmount(input string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(input), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", domain.Invalid("amount %q is not a number", strings.TrimSpace(input))
	}
	if v <= 0 {
		return "", domain.Invalid("amount must be positive")
	}
	if v > maxReceiptAmount {
		return "", domain.Invalid("amount exceeds the %d limit", maxReceiptAmount)
	}
	return strconv.FormatFloat(v, 'f', 2, 64), nil
}
