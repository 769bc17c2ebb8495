package convalidation

import (
	"fmt"
	"math"
	"strings"
)

// ProgressStatus classifies the change in a student's progress.
type ProgressStatus string

const (
	StatusImproved ProgressStatus = "improved"
	StatusDeclined ProgressStatus = "declined"
	StatusNeutral  ProgressStatus = "neutral"
)

// neutralBand is the largest change magnitude still considered neutral.
const neutralBand = 0.1

// ComponentUsage is one line of the per-component credit breakdown.
type ComponentUsage struct {
	Component Component `json:"component"`
	Credits   int       `json:"credits"`
	// Ceiling is nil when the component is unlimited.
	Ceiling *int `json:"ceiling"`
}

// ProgressReport is the projection of one student's progress under the new curriculum.
type ProgressReport struct {
	StudentID             string           `json:"student_id"`
	OriginalPassedCount   int              `json:"original_passed_count"`
	OriginalTotalSubjects int              `json:"original_total_subjects"`
	NewTotalSubjects      int              `json:"new_total_subjects"`
	OriginalProgress      float64          `json:"original_progress"`
	NewProgress           float64          `json:"new_progress"`
	ProgressChange        float64          `json:"progress_change"`
	Status                ProgressStatus   `json:"status"`
	ConvalidatedCount     int              `json:"convalidated_count"`
	NewSubjectsRequired   int              `json:"new_subjects_required"`
	Breakdown             []ComponentUsage `json:"breakdown"`
	Explanation           string           `json:"explanation"`
	Warnings              []Warning        `json:"warnings"`
}

// Project turns an allocation into original-vs-new progress percentages. The change is taken
// from the unrounded percentages and rounded once; the status is decided on that rounded change.
func Project(originalPassedCount, originalTotalSubjects int, allocation AllocationResult, newTotalSubjects int) ProgressReport {
	original := 100 * float64(originalPassedCount) / float64(max(originalTotalSubjects, 1))
	projected := 100 * float64(allocation.ConvalidatedCount) / float64(max(newTotalSubjects, 1))
	change := round1(projected - original)
	if change == 0 {
		change = 0 // drop negative zero
	}

	breakdown := make([]ComponentUsage, 0, len(Components()))
	for _, c := range Components() {
		breakdown = append(breakdown, ComponentUsage{Component: c, Credits: allocation.Used[c]})
	}

	warnings := allocation.Warnings
	if warnings == nil {
		warnings = []Warning{}
	}

	report := ProgressReport{
		StudentID:             allocation.StudentID,
		OriginalPassedCount:   originalPassedCount,
		OriginalTotalSubjects: originalTotalSubjects,
		NewTotalSubjects:      newTotalSubjects,
		OriginalProgress:      round1(original),
		NewProgress:           round1(projected),
		ProgressChange:        change,
		Status:                classifyChange(change),
		ConvalidatedCount:     allocation.ConvalidatedCount,
		NewSubjectsRequired:   allocation.NewSubjectsRequired,
		Breakdown:             breakdown,
		Warnings:              warnings,
	}
	report.Explanation = explain(report, allocation)
	return report
}

func classifyChange(change float64) ProgressStatus {
	switch {
	case change > neutralBand:
		return StatusImproved
	case change < -neutralBand:
		return StatusDeclined
	default:
		return StatusNeutral
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func explain(report ProgressReport, allocation AllocationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original progress: %.1f%% (%d of %d subjects). ",
		report.OriginalProgress, report.OriginalPassedCount, report.OriginalTotalSubjects)
	fmt.Fprintf(&b, "New progress: %.1f%% (%d of %d subjects). ",
		report.NewProgress, report.ConvalidatedCount, report.NewTotalSubjects)
	fmt.Fprintf(&b, "Change: %+.1f points (%s).", report.ProgressChange, report.Status)

	for _, d := range allocation.Details {
		b.WriteString("\n- ")
		b.WriteString(describeDetail(d))
	}

	if allocation.NewSubjectsRequired > 0 {
		fmt.Fprintf(&b, "\nNew subjects required: %d.", allocation.NewSubjectsRequired)
	}
	if len(allocation.Warnings) > 0 {
		fmt.Fprintf(&b, "\nSkipped equivalences: %d.", len(allocation.Warnings))
	}
	return b.String()
}

func describeDetail(d Detail) string {
	subject := fmt.Sprintf("%s %s", d.ExternalCode, d.ExternalName)
	if d.InternalCode != "" {
		subject = fmt.Sprintf("%s -> %s %s", subject, d.InternalCode, d.InternalName)
	}

	switch d.Kind {
	case DetailDirectPartial:
		line := fmt.Sprintf("%s: %d of %d credits to %s, %d moved to %s",
			subject, d.Accepted, d.Credits, d.Component.Label(), d.OverflowAccepted, ComponentFreeElective.Label())
		if d.Excess > 0 {
			line += fmt.Sprintf(", %d not counted", d.Excess)
		}
		return line
	case DetailFlexible:
		return fmt.Sprintf("%s: %d credits to %s (flexible)", subject, d.Accepted, ComponentFreeElective.Label())
	case DetailFlexiblePartial:
		return fmt.Sprintf("%s: %d of %d credits to %s (flexible), %d not counted",
			subject, d.Accepted, d.Credits, ComponentFreeElective.Label(), d.Excess)
	default:
		return fmt.Sprintf("%s: %d credits to %s", subject, d.Accepted, d.Component.Label())
	}
}
