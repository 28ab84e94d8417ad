package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "erasure/pkg/domain-errors"
)

func sampleReport() *Report {
	return &Report{
		ID:          "monthly_2026-06-01_1751446800000",
		Type:        TypeMonthly,
		Period:      Period{Start: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		GeneratedAt: time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC),
		GeneratedBy: GeneratedBySystem,
		Summary: Summary{
			TotalDeletionRequests: 12,
			CompletedDeletions:    10,
			PendingDeletions:      1,
			FailedDeletions:       1,
			AverageProcessingTime: 40,
			ComplianceRate:        92,
			SecurityIncidents:     2,
		},
		ComplianceStatus: StatusNonCompliant,
		Recommendations: []string{
			"Investigate and resolve failed deletion requests to maintain 100% compliance rate",
		},
		Attachments: []string{},
	}
}

func TestExportJSON(t *testing.T) {
	out, err := Export(sampleReport(), FormatJSON)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "MONTHLY", decoded["reportType"])
	assert.Equal(t, "NON_COMPLIANT", decoded["complianceStatus"])

	summary, ok := decoded["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(12), summary["totalDeletionRequests"])

	// Indented output for human review.
	assert.True(t, bytes.Contains(out, []byte("\n  ")))
}

func TestExportCSV(t *testing.T) {
	out, err := Export(sampleReport(), FormatCSV)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 10)

	assert.Equal(t, []string{"Metric", "Value", "Period", "Compliance Status"}, rows[0])
	assert.Equal(t, []string{"Report Type", "MONTHLY", "2026-06-01T00:00:00Z - 2026-07-01T00:00:00Z", "NON_COMPLIANT"}, rows[1])
	assert.Equal(t, []string{"Compliance Rate", "92%", "", ""}, rows[6])
	assert.Equal(t, "Recommendation 1", rows[9][0])
}

func TestExportPDFNotImplemented(t *testing.T) {
	_, err := Export(sampleReport(), FormatPDF)
	assert.ErrorIs(t, err, ErrPDFNotImplemented)
}

func TestExportUnknownFormat(t *testing.T) {
	_, err := Export(sampleReport(), Format("XML"))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
}
