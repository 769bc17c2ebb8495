package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/convalidation-api/internal/models"
	"github.com/noah-isme/convalidation-api/pkg/convalidation"
	"github.com/noah-isme/convalidation-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportResult is a rendered file ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService turns impact snapshots into downloadable tables.
type ExportService struct {
	csv csvRenderer
}

// NewExportService constructs an ExportService.
func NewExportService(csv csvRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &ExportService{csv: csv}
}

var impactExportHeaders = []string{
	"student_id",
	"status",
	"original_progress",
	"new_progress",
	"progress_change",
	"convalidated_count",
	"new_subjects_required",
	"excess_credits",
	"warnings",
	"not_convalidated",
}

// ImpactDataset builds one row per student, in snapshot order.
func ImpactDataset(snapshots []models.ImpactSnapshot) export.Dataset {
	headers := append([]string{}, impactExportHeaders...)
	for _, c := range convalidation.Components() {
		headers = append(headers, "credits_"+string(c))
	}

	rows := make([]map[string]string, 0, len(snapshots))
	for _, snapshot := range snapshots {
		report := snapshot.Payload.Report
		allocation := snapshot.Payload.Allocation
		row := map[string]string{
			"student_id":            snapshot.StudentID,
			"status":                string(report.Status),
			"original_progress":     formatPercent(report.OriginalProgress),
			"new_progress":          formatPercent(report.NewProgress),
			"progress_change":       formatPercent(report.ProgressChange),
			"convalidated_count":    strconv.Itoa(allocation.ConvalidatedCount),
			"new_subjects_required": strconv.Itoa(report.NewSubjectsRequired),
			"excess_credits":        strconv.Itoa(allocation.TotalExcess()),
			"warnings":              strconv.Itoa(len(allocation.Warnings)),
			"not_convalidated":      strings.Join(allocation.NotConvalidated, ";"),
		}
		for _, c := range convalidation.Components() {
			row["credits_"+string(c)] = strconv.Itoa(allocation.Used[c])
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// RenderImpact renders a run's snapshots as CSV.
func (s *ExportService) RenderImpact(runID string, snapshots []models.ImpactSnapshot) (*ExportResult, error) {
	data, err := s.csv.Render(ImpactDataset(snapshots))
	if err != nil {
		return nil, fmt.Errorf("render impact export: %w", err)
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("impact-%s.csv", runID),
		ContentType: s.csv.ContentType(),
		Data:        data,
	}, nil
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
