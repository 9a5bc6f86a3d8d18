package artifact

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idobetesh/papertrail/internal/domain"
	"github.com/idobetesh/papertrail/internal/flow"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
}

func TestGenerateReceipt(t *testing.T) {
	g := NewTextGenerator("Acme Properties").WithClock(fixedNow)
	art, err := g.Generate(context.Background(), &domain.Session{
		ID:   "abc-123",
		Flow: domain.FlowDocument,
		Fields: domain.Fields{
			flow.FieldTenant: "Dana Levi",
			flow.FieldAmount: "4200.00",
			flow.FieldDate:   "2026-08-01",
			flow.FieldFormat: "pdf",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "receipt-2026-08-01.pdf.txt", art.Name)
	assert.Contains(t, string(art.Content), "Dana Levi")
	assert.Contains(t, string(art.Content), "4200.00")
	assert.Contains(t, art.Caption, "2026-08-01")
}

func TestGenerateReceiptIncompleteFields(t *testing.T) {
	g := NewTextGenerator("Acme Properties")
	_, err := g.Generate(context.Background(), &domain.Session{
		ID:     "abc-123",
		Flow:   domain.FlowDocument,
		Fields: domain.Fields{flow.FieldTenant: "Dana Levi"},
	})
	require.Error(t, err)
}

func TestGenerateReport(t *testing.T) {
	g := NewTextGenerator("Acme Properties").WithClock(fixedNow)
	art, err := g.Generate(context.Background(), &domain.Session{
		ID:   "r-1",
		Flow: domain.FlowReport,
		Fields: domain.Fields{
			flow.FieldReportType: "revenue",
			flow.FieldPeriodFrom: "2026-07-01",
			flow.FieldPeriodTo:   "2026-07-31",
			flow.FieldFormat:     "csv",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "report-revenue-2026-07-01.csv.txt", art.Name)
	assert.Contains(t, string(art.Content), "REVENUE REPORT")
}

func TestGenerateOnboardingHasNoArtifact(t *testing.T) {
	g := NewTextGenerator("Acme Properties")
	art, err := g.Generate(context.Background(), &domain.Session{Flow: domain.FlowOnboarding})
	require.NoError(t, err)
	assert.Nil(t, art)
}
