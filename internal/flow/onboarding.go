package flow

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/idobetesh/papertrail/internal/domain"
)

// Onboarding flow steps: collect the tenant's name, unit and monthly rent,
// an optional email, then a final confirmation. No artifact is generated,
// so the flow does not consume the daily quota.
const (
	StepObName    domain.Step = "onb_name"
	StepObUnit    domain.Step = "onb_unit"
	StepObRent    domain.Step = "onb_rent"
	StepObEmail   domain.Step = "onb_email"
	StepObConfirm domain.Step = "onb_confirm"
)

// Field keys owned by the onboarding flow.
const (
	FieldTenantName = "tenant_name"
	FieldUnit       = "unit"
	FieldRent       = "rent"
	FieldEmail      = "email"
	FieldConfirmed  = "confirmed"
)

const (
	minNameRunes = 2
	maxNameRunes = 64
	maxUnitRunes = 32
)

// Onboarding builds the tenant onboarding wizard graph.
func Onboarding() *Graph {
	steps := []domain.Step{StepObName, StepObUnit, StepObRent, StepObEmail, StepObConfirm}
	return NewGraph(domain.FlowOnboarding, false, steps, map[domain.Step]StepSpec{
		StepObName: {
			Accepts: []domain.EventKind{domain.EventMessage},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				name := strings.TrimSpace(ev.Text)
				if n := utf8.RuneCountInString(name); n < minNameRunes || n > maxNameRunes {
					return nil, domain.Invalid("name must be %d to %d characters", minNameRunes, maxNameRunes)
				}
				fields[FieldTenantName] = name
				return fields, nil
			},
			Next: func(domain.Fields) domain.Step { return StepObUnit },
		},
		StepObUnit: {
			Accepts: []domain.EventKind{domain.EventMessage},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				unit := strings.TrimSpace(ev.Text)
				if unit == "" || utf8.RuneCountInString(unit) > maxUnitRunes {
					return nil, domain.Invalid("unit must be 1 to %d characters", maxUnitRunes)
				}
				fields[FieldUnit] = unit
				return fields, nil
			},
			Next: func(domain.Fields) domain.Step { return StepObRent },
		},
		StepObRent: {
			Accepts: []domain.EventKind{domain.EventMessage},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				rent, err := parseAmount(ev.Text)
				if err != nil {
					return nil, err
				}
				fields[FieldRent] = rent
				return fields, nil
			},
			Next: func(domain.Fields) domain.Step { return StepObEmail },
		},
		StepObEmail: {
			// Free text with an explicit skip button.
			Accepts: []domain.EventKind{domain.EventMessage, domain.EventCallback},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				if ev.Kind == domain.EventCallback {
					if err := requireAction(ev, domain.ActionSkip); err != nil {
						return nil, err
					}
					delete(fields, FieldEmail)
					return fields, nil
				}
				addr, err := mail.ParseAddress(strings.TrimSpace(ev.Text))
				if err != nil {
					return nil, domain.Invalid("that does not look like an email address")
				}
				fields[FieldEmail] = addr.Address
				return fields, nil
			},
			Next: func(domain.Fields) domain.Step { return StepObConfirm },
		},
		StepObConfirm: {
			Accepts: []domain.EventKind{domain.EventCallback},
			Validate: func(ev domain.Event, fields domain.Fields) (domain.Fields, error) {
				if err := requireAction(ev, domain.ActionConfirm); err != nil {
					return nil, err
				}
				switch ev.Value {
				case "yes", "no":
					fields[FieldConfirmed] = ev.Value
					return fields, nil
				}
				return nil, domain.Invalid("unexpected confirmation %q", ev.Value)
			},
			Outcome: func(fields domain.Fields) domain.Status {
				if fields[FieldConfirmed] == "yes" {
					return domain.StatusCompleted
				}
				return domain.StatusCancelled
			},
		},
	})
}
