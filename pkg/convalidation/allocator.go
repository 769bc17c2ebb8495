package convalidation

import (
	"fmt"

	"go.uber.org/zap"
)

// DetailKind describes how a subject's credits were placed.
type DetailKind string

const (
	DetailDirect          DetailKind = "direct"
	DetailDirectPartial   DetailKind = "direct_partial"
	DetailFlexible        DetailKind = "flexible"
	DetailFlexiblePartial DetailKind = "flexible_partial"
)

// Detail records one subject that went through allocation.
type Detail struct {
	Kind         DetailKind `json:"kind"`
	ExternalCode string     `json:"external_code"`
	ExternalName string     `json:"external_name"`
	InternalCode string     `json:"internal_code,omitempty"`
	InternalName string     `json:"internal_name,omitempty"`
	Component    Component  `json:"component"`
	Credits      int        `json:"credits"`
	// Accepted is what fit in Component; OverflowAccepted is what the free-elective pool took afterwards.
	Accepted         int `json:"accepted"`
	OverflowAccepted int `json:"overflow_accepted"`
	Excess           int `json:"excess"`
}

// Contributed returns the credits this subject added to the student's totals.
func (d Detail) Contributed() int {
	return d.Accepted + d.OverflowAccepted
}

// OverflowEvent records credits redirected from a full component.
type OverflowEvent struct {
	SubjectCode string    `json:"subject_code"`
	Component   Component `json:"component"`
	Credits     int       `json:"credits"`
}

// ExcessEvent records credits that did not fit anywhere.
type ExcessEvent struct {
	SubjectCode string    `json:"subject_code"`
	Component   Component `json:"component"`
	Credits     int       `json:"credits"`
}

// AllocationResult is the per-student credit breakdown.
type AllocationResult struct {
	StudentID           string            `json:"student_id"`
	Used                map[Component]int `json:"used"`
	Details             []Detail          `json:"details"`
	Overflows           []OverflowEvent   `json:"overflow_events"`
	Excess              []ExcessEvent     `json:"excess_events"`
	ConvalidatedCount   int               `json:"convalidated_count"`
	NewSubjectsRequired int               `json:"new_subjects_required"`
	NotConvalidated     []string          `json:"not_convalidated"`
	Warnings            []Warning         `json:"warnings"`
}

// TotalUsed sums credits over every component.
func (r AllocationResult) TotalUsed() int {
	total := 0
	for _, credits := range r.Used {
		total += credits
	}
	return total
}

// TotalExcess sums every excess event.
func (r AllocationResult) TotalExcess() int {
	total := 0
	for _, e := range r.Excess {
		total += e.Credits
	}
	return total
}

// accumulator holds the running credit totals of one allocation.
type accumulator struct {
	limits CreditLimits
	used   map[Component]int
}

func newAccumulator(limits CreditLimits) *accumulator {
	used := make(map[Component]int, len(Components()))
	for _, c := range Components() {
		used[c] = 0
	}
	return &accumulator{limits: limits, used: used}
}

// deposit places amount in component up to its ceiling and returns what did not fit.
func (a *accumulator) deposit(amount int, component Component) (accepted, overflow int) {
	ceiling, finite := a.limits.Ceiling(component)
	current := a.used[component]
	if !finite || current+amount <= ceiling {
		a.used[component] = current + amount
		return amount, 0
	}
	accepted = max(ceiling-current, 0)
	a.used[component] = current + accepted
	return accepted, amount - accepted
}

type queuedOverflow struct {
	detail    int
	component Component
	amount    int
}

// Allocator places a student's convalidated credits into components.
type Allocator struct {
	internal Catalog
	external Catalog
	logger   *zap.Logger
}

// NewAllocator builds an allocator over the internal catalog and one external curriculum.
func NewAllocator(internal, external Catalog, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{internal: internal, external: external, logger: logger}
}

// Allocate walks the confirmed equivalences for one student. Direct decisions go first in
// confirmation order, then queued overflow drains into free electives, then flexible decisions.
// Only a ConfigurationError is returned; per-equivalence problems become warnings.
func (a *Allocator) Allocate(equivalences []Equivalence, record StudentCreditRecord, limits CreditLimits) (AllocationResult, error) {
	if err := limits.Validate(); err != nil {
		return AllocationResult{}, err
	}
	return a.allocate(equivalences, record, limits), nil
}

func (a *Allocator) allocate(equivalences []Equivalence, record StudentCreditRecord, limits CreditLimits) AllocationResult {
	acc := newAccumulator(limits)
	result := AllocationResult{
		StudentID:       record.StudentID,
		Details:         []Detail{},
		Overflows:       []OverflowEvent{},
		Excess:          []ExcessEvent{},
		NotConvalidated: []string{},
		Warnings:        []Warning{},
	}
	passed := passedSet(record)
	seen := make(map[string]struct{}, len(equivalences))

	var queue []queuedOverflow
	var flexible []Equivalence

	for _, eq := range equivalences {
		key := normalizeCode(eq.ExternalCode)
		if key == "" {
			a.warn(&result, eq.ExternalCode, fmt.Errorf("equivalence without external subject code"))
			continue
		}
		if _, dup := seen[key]; dup {
			a.warn(&result, eq.ExternalCode, fmt.Errorf("duplicate equivalence for %q ignored", eq.ExternalCode))
			continue
		}
		seen[key] = struct{}{}

		switch d := eq.Decision.(type) {
		case Direct:
			detail, overflow, err := a.direct(acc, eq.ExternalCode, d, passed)
			if err != nil {
				a.warn(&result, eq.ExternalCode, err)
				continue
			}
			if detail == nil {
				continue
			}
			result.Details = append(result.Details, *detail)
			if overflow > 0 {
				result.Overflows = append(result.Overflows, OverflowEvent{
					SubjectCode: detail.ExternalCode,
					Component:   detail.Component,
					Credits:     overflow,
				})
				queue = append(queue, queuedOverflow{detail: len(result.Details) - 1, component: detail.Component, amount: overflow})
			}
		case Flexible:
			if !d.Component.Valid() {
				a.warn(&result, eq.ExternalCode, fmt.Errorf("flexible equivalence with unknown component %q", d.Component))
				continue
			}
			flexible = append(flexible, eq)
		case NotConvalidated:
			if !d.Component.Valid() {
				a.warn(&result, eq.ExternalCode, fmt.Errorf("not-convalidated equivalence with unknown component %q", d.Component))
				continue
			}
			result.NewSubjectsRequired++
			result.NotConvalidated = append(result.NotConvalidated, eq.ExternalCode)
		default:
			a.warn(&result, eq.ExternalCode, fmt.Errorf("equivalence without decision"))
		}
	}

	for _, q := range queue {
		accepted, rest := acc.deposit(q.amount, ComponentFreeElective)
		detail := &result.Details[q.detail]
		detail.OverflowAccepted += accepted
		if rest > 0 {
			detail.Excess += rest
			result.Excess = append(result.Excess, ExcessEvent{SubjectCode: detail.ExternalCode, Component: q.component, Credits: rest})
		}
	}

	for _, eq := range flexible {
		d := eq.Decision.(Flexible)
		detail, err := a.flexible(acc, eq.ExternalCode, d, passed)
		if err != nil {
			a.warn(&result, eq.ExternalCode, err)
			continue
		}
		if detail == nil {
			continue
		}
		if detail.Excess > 0 {
			result.Excess = append(result.Excess, ExcessEvent{SubjectCode: detail.ExternalCode, Component: d.Component, Credits: detail.Excess})
		}
		result.Details = append(result.Details, *detail)
	}

	for _, detail := range result.Details {
		if detail.Contributed() >= 1 {
			result.ConvalidatedCount++
		}
	}
	result.Used = acc.used
	return result
}

// direct returns a nil detail when the student did not pass the external subject.
func (a *Allocator) direct(acc *accumulator, externalCode string, d Direct, passed map[string]struct{}) (*Detail, int, error) {
	if normalizeCode(d.InternalCode) == "" {
		return nil, 0, fmt.Errorf("direct equivalence for %q without internal subject", externalCode)
	}
	external, err := a.external.resolve("external", externalCode)
	if err != nil {
		if _, bad := err.(*DataError); !bad {
			return nil, 0, err
		}
		// The internal subject supplies the credits, so bad external credits do not matter here.
		external = Subject{Code: externalCode}
	}
	internal, err := a.internal.resolve("internal", d.InternalCode)
	if err != nil {
		return nil, 0, err
	}
	if _, ok := passed[normalizeCode(externalCode)]; !ok {
		return nil, 0, nil
	}

	component := internal.Component()
	accepted, overflow := acc.deposit(internal.Credits, component)
	kind := DetailDirect
	if overflow > 0 {
		kind = DetailDirectPartial
	}
	return &Detail{
		Kind:         kind,
		ExternalCode: external.Code,
		ExternalName: external.Name,
		InternalCode: internal.Code,
		InternalName: internal.Name,
		Component:    component,
		Credits:      internal.Credits,
		Accepted:     accepted,
	}, overflow, nil
}

func (a *Allocator) flexible(acc *accumulator, externalCode string, d Flexible, passed map[string]struct{}) (*Detail, error) {
	external, err := a.external.resolve("external", externalCode)
	if err != nil {
		return nil, err
	}
	if _, ok := passed[normalizeCode(externalCode)]; !ok {
		return nil, nil
	}

	accepted, rest := acc.deposit(external.Credits, ComponentFreeElective)
	kind := DetailFlexible
	if rest > 0 {
		kind = DetailFlexiblePartial
	}
	return &Detail{
		Kind:         kind,
		ExternalCode: external.Code,
		ExternalName: external.Name,
		Component:    ComponentFreeElective,
		Credits:      external.Credits,
		Accepted:     accepted,
		Excess:       rest,
	}, nil
}

func (a *Allocator) warn(result *AllocationResult, code string, err error) {
	result.Warnings = append(result.Warnings, warningFromError(code, err))
	a.logger.Warn("equivalence skipped",
		zap.String("student_id", result.StudentID),
		zap.String("subject_code", code),
		zap.Error(err),
	)
}

func passedSet(record StudentCreditRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(record.Entries))
	for _, e := range record.Entries {
		if e.Passed {
			set[normalizeCode(e.SubjectCode)] = struct{}{}
		}
	}
	return set
}
