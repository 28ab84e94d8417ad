package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	dErrors "erasure/pkg/domain-errors"
)

// Format is a report export format.
type Format string

const (
	FormatJSON Format = "JSON"
	FormatCSV  Format = "CSV"
	FormatPDF  Format = "PDF"
)

// ErrPDFNotImplemented is returned for PDF exports until a renderer is wired.
var ErrPDFNotImplemented = errors.New("pdf export not implemented")

// Export serializes a report. JSON carries the full report; CSV flattens the
// summary and recommendations for spreadsheet review.
func Export(report *Report, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("export report json: %w", err)
		}
		return out, nil
	case FormatCSV:
		return exportCSV(report)
	case FormatPDF:
		return nil, ErrPDFNotImplemented
	default:
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unsupported export format: %s", format)
	}
}

func exportCSV(report *Report) ([]byte, error) {
	period := report.Period.Start.UTC().Format(time.RFC3339) + " - " + report.Period.End.UTC().Format(time.RFC3339)

	rows := [][]string{
		{"Metric", "Value", "Period", "Compliance Status"},
		{"Report Type", string(report.Type), period, string(report.ComplianceStatus)},
		{"Total Deletion Requests", strconv.Itoa(report.Summary.TotalDeletionRequests), "", ""},
		{"Completed Deletions", strconv.Itoa(report.Summary.CompletedDeletions), "", ""},
		{"Pending Deletions", strconv.Itoa(report.Summary.PendingDeletions), "", ""},
		{"Failed Deletions", strconv.Itoa(report.Summary.FailedDeletions), "", ""},
		{"Compliance Rate", strconv.Itoa(report.Summary.ComplianceRate) + "%", "", ""},
		{"Average Processing Time (hours)", strconv.Itoa(report.Summary.AverageProcessingTime), "", ""},
		{"Security Incidents", strconv.Itoa(report.Summary.SecurityIncidents), "", ""},
	}
	for i, rec := range report.Recommendations {
		rows = append(rows, []string{fmt.Sprintf("Recommendation %d", i+1), rec, "", ""})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("export report csv: %w", err)
	}
	return buf.Bytes(), nil
}
