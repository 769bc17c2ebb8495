package convalidation

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds batch parallelism when Options.Workers is unset.
const DefaultWorkers = 8

// Snapshot is the read-only curriculum state a batch is evaluated against.
type Snapshot struct {
	Limits           CreditLimits
	Equivalences     []Equivalence
	Internal         Catalog
	External         Catalog
	NewTotalSubjects int
}

// StudentInput is one unit of batch work.
type StudentInput struct {
	Record                StudentCreditRecord
	OriginalPassedCount   int
	OriginalTotalSubjects int
}

// StudentImpact bundles the allocation and projection for a student.
type StudentImpact struct {
	StudentID  string           `json:"student_id"`
	Allocation AllocationResult `json:"allocation"`
	Report     ProgressReport   `json:"report"`
}

// Summary aggregates progress reports over a batch.
type Summary struct {
	Students      int     `json:"students"`
	Improved      int     `json:"improved"`
	Declined      int     `json:"declined"`
	Neutral       int     `json:"neutral"`
	AverageChange float64 `json:"average_change"`
}

// BatchResult holds the impacts of every student evaluated before the batch ended.
type BatchResult struct {
	Impacts   []StudentImpact `json:"impacts"`
	Summary   Summary         `json:"summary"`
	Cancelled bool            `json:"cancelled"`
}

// Options tunes the engine.
type Options struct {
	Workers int
	Logger  *zap.Logger
}

// Engine evaluates students against curriculum snapshots.
type Engine struct {
	workers int
	logger  *zap.Logger
}

// NewEngine constructs an engine.
func NewEngine(opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{workers: opts.Workers, logger: opts.Logger}
}

// Evaluate allocates and projects a single student.
func (e *Engine) Evaluate(snapshot Snapshot, student StudentInput) (StudentImpact, error) {
	if err := snapshot.Limits.Validate(); err != nil {
		return StudentImpact{}, err
	}
	return e.evaluate(NewAllocator(snapshot.Internal, snapshot.External, e.logger), snapshot, student), nil
}

func (e *Engine) evaluate(allocator *Allocator, snapshot Snapshot, student StudentInput) StudentImpact {
	allocation := allocator.allocate(snapshot.Equivalences, student.Record, snapshot.Limits)
	report := Project(student.OriginalPassedCount, student.OriginalTotalSubjects, allocation, snapshot.NewTotalSubjects)
	for i := range report.Breakdown {
		if ceiling, ok := snapshot.Limits.Ceiling(report.Breakdown[i].Component); ok {
			report.Breakdown[i].Ceiling = Limit(ceiling)
		}
	}
	return StudentImpact{StudentID: student.Record.StudentID, Allocation: allocation, Report: report}
}

// RunBatch evaluates every student in parallel. Invalid limits abort before any student runs.
// When ctx is cancelled no further students are scheduled; impacts already computed are
// returned, in input order, together with ctx.Err().
func (e *Engine) RunBatch(ctx context.Context, snapshot Snapshot, students []StudentInput) (*BatchResult, error) {
	if err := snapshot.Limits.Validate(); err != nil {
		return nil, err
	}

	allocator := NewAllocator(snapshot.Internal, snapshot.External, e.logger)
	results := make([]*StudentImpact, len(students))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range students {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			impact := e.evaluate(allocator, snapshot, students[i])
			results[i] = &impact
			return nil
		})
	}
	_ = g.Wait()

	impacts := make([]StudentImpact, 0, len(students))
	for _, r := range results {
		if r != nil {
			impacts = append(impacts, *r)
		}
	}

	reports := make([]ProgressReport, len(impacts))
	for i, impact := range impacts {
		reports[i] = impact.Report
	}

	batch := &BatchResult{Impacts: impacts, Summary: Summarize(reports)}
	if err := ctx.Err(); err != nil {
		batch.Cancelled = true
		e.logger.Warn("impact batch cancelled",
			zap.Int("completed", len(impacts)),
			zap.Int("requested", len(students)),
		)
		return batch, err
	}
	return batch, nil
}

// Summarize reduces per-student reports into batch counts and the mean change.
func Summarize(reports []ProgressReport) Summary {
	summary := Summary{Students: len(reports)}
	if len(reports) == 0 {
		return summary
	}
	total := 0.0
	for _, r := range reports {
		switch r.Status {
		case StatusImproved:
			summary.Improved++
		case StatusDeclined:
			summary.Declined++
		default:
			summary.Neutral++
		}
		total += r.ProgressChange
	}
	summary.AverageChange = total / float64(len(reports))
	return summary
}
