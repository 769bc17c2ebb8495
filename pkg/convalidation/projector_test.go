package convalidation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectImprovedScenario(t *testing.T) {
	report := Project(5, 50, AllocationResult{StudentID: "s-1", ConvalidatedCount: 6}, 40)

	assert.Equal(t, 10.0, report.OriginalProgress)
	assert.Equal(t, 15.0, report.NewProgress)
	assert.Equal(t, 5.0, report.ProgressChange)
	assert.Equal(t, StatusImproved, report.Status)
	assert.Equal(t, "s-1", report.StudentID)
	assert.True(t, strings.HasPrefix(report.Explanation, "Original progress: 10.0% (5 of 50 subjects). New progress: 15.0% (6 of 40 subjects). Change: +5.0 points (improved)."))
}

func TestProjectStatusBands(t *testing.T) {
	cases := []struct {
		name      string
		passed    int
		total     int
		converted int
		newTotal  int
		want      ProgressStatus
	}{
		{"identical", 10, 100, 10, 100, StatusNeutral},
		{"within band", 100, 1000, 1001, 10000, StatusNeutral},
		{"declined", 20, 40, 5, 40, StatusDeclined},
		{"improved", 1, 40, 2, 40, StatusImproved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := Project(tc.passed, tc.total, AllocationResult{ConvalidatedCount: tc.converted}, tc.newTotal)
			assert.Equal(t, tc.want, report.Status)
		})
	}
}

func TestProjectRoundsChangeFromUnroundedPercentages(t *testing.T) {
	thirds := Project(1, 3, AllocationResult{ConvalidatedCount: 1}, 6)
	assert.Equal(t, 33.3, thirds.OriginalProgress)
	assert.Equal(t, 16.7, thirds.NewProgress)
	assert.Equal(t, -16.7, thirds.ProgressChange)
	assert.Equal(t, StatusDeclined, thirds.Status)

	// 10.04% -> 10.15% is a raw change of 0.11, which rounds into the neutral band.
	edge := Project(251, 2500, AllocationResult{ConvalidatedCount: 1015}, 10000)
	assert.Equal(t, 10.0, edge.OriginalProgress)
	assert.Equal(t, 10.2, edge.NewProgress)
	assert.Equal(t, 0.1, edge.ProgressChange)
	assert.Equal(t, StatusNeutral, edge.Status)
	assert.Equal(t, 1, Summarize([]ProgressReport{edge}).Neutral)
}

func TestProjectZeroTotals(t *testing.T) {
	report := Project(0, 0, AllocationResult{}, 0)
	assert.Equal(t, 0.0, report.OriginalProgress)
	assert.Equal(t, 0.0, report.NewProgress)
	assert.Equal(t, StatusNeutral, report.Status)
	assert.Contains(t, report.Explanation, "Change: +0.0 points (neutral).")
	assert.NotNil(t, report.Warnings)
}

func TestProjectExplanationFollowsDetailOrder(t *testing.T) {
	allocation := AllocationResult{
		StudentID:         "s-2",
		ConvalidatedCount: 2,
		Used:              map[Component]int{ComponentFundamentalRequired: 10, ComponentFreeElective: 4},
		Details: []Detail{
			{Kind: DetailDirectPartial, ExternalCode: "E1", ExternalName: "Calculo I", InternalCode: "MAT101", InternalName: "Cálculo Diferencial", Component: ComponentFundamentalRequired, Credits: 12, Accepted: 10, OverflowAccepted: 1, Excess: 1},
			{Kind: DetailFlexible, ExternalCode: "E4", ExternalName: "Deportes", Component: ComponentFreeElective, Credits: 3, Accepted: 3},
		},
		NewSubjectsRequired: 2,
		Warnings:            []Warning{{Kind: WarningLookup, SubjectCode: "E9", Message: "missing"}},
	}

	report := Project(3, 30, allocation, 20)
	lines := strings.Split(report.Explanation, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "- E1 Calculo I -> MAT101 Cálculo Diferencial: 10 of 12 credits to required fundamentals, 1 moved to free electives, 1 not counted", lines[1])
	assert.Equal(t, "- E4 Deportes: 3 credits to free electives (flexible)", lines[2])
	assert.Equal(t, "New subjects required: 2.", lines[3])
	assert.Equal(t, "Skipped equivalences: 1.", lines[4])

	require.Len(t, report.Breakdown, len(Components()))
	assert.Equal(t, ComponentUsage{Component: ComponentFundamentalRequired, Credits: 10}, report.Breakdown[0])
	assert.Equal(t, ComponentUsage{Component: ComponentFreeElective, Credits: 4}, report.Breakdown[6])
}

func TestSummarize(t *testing.T) {
	summary := Summarize([]ProgressReport{
		{Status: StatusImproved, ProgressChange: 5},
		{Status: StatusDeclined, ProgressChange: -3},
		{Status: StatusNeutral, ProgressChange: 0.1},
		{Status: StatusImproved, ProgressChange: 1.9},
	})
	assert.Equal(t, 4, summary.Students)
	assert.Equal(t, 2, summary.Improved)
	assert.Equal(t, 1, summary.Declined)
	assert.Equal(t, 1, summary.Neutral)
	assert.InDelta(t, 1.0, summary.AverageChange, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))
}
