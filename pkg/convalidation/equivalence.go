package convalidation

import (
	"fmt"
	"math"
	"strings"
)

// Subject is a course in either the internal catalog or an external curriculum.
type Subject struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Credits    int    `json:"credits"`
	Type       string `json:"type"`
	IsRequired bool   `json:"is_required"`
	IsLeveling bool   `json:"is_leveling"`
}

// Component classifies the subject.
func (s Subject) Component() Component {
	return Classify(s.Type, s.IsRequired, s.IsLeveling, s.Code)
}

// Catalog indexes subjects by case-insensitive code. Subjects whose data cannot be
// allocated are kept as rejections so lookups report a DataError rather than a miss.
type Catalog struct {
	subjects map[string]Subject
	rejected map[string]*DataError
}

// NewCatalog builds a catalog. Later duplicates replace earlier ones.
func NewCatalog(subjects []Subject) Catalog {
	catalog := Catalog{
		subjects: make(map[string]Subject, len(subjects)),
		rejected: make(map[string]*DataError),
	}
	for _, s := range subjects {
		catalog.Add(s)
	}
	return catalog
}

// Add indexes s, replacing any subject or rejection with the same code.
func (c *Catalog) Add(s Subject) {
	c.init()
	key := normalizeCode(s.Code)
	delete(c.rejected, key)
	c.subjects[key] = s
}

// Reject records that code exists but must be excluded from allocation.
func (c *Catalog) Reject(code, reason string) {
	c.init()
	key := normalizeCode(code)
	delete(c.subjects, key)
	c.rejected[key] = &DataError{Code: code, Reason: reason}
}

// Lookup finds an allocatable subject by code.
func (c Catalog) Lookup(code string) (Subject, bool) {
	s, ok := c.subjects[normalizeCode(code)]
	return s, ok
}

// Len counts allocatable and rejected subjects.
func (c Catalog) Len() int {
	return len(c.subjects) + len(c.rejected)
}

func (c Catalog) resolve(catalog, code string) (Subject, error) {
	key := normalizeCode(code)
	if s, ok := c.subjects[key]; ok {
		if s.Credits < 0 {
			return Subject{}, &DataError{Code: s.Code, Reason: fmt.Sprintf("negative credits (%d)", s.Credits)}
		}
		return s, nil
	}
	if rejected, ok := c.rejected[key]; ok {
		return Subject{}, rejected
	}
	return Subject{}, &LookupError{Catalog: catalog, Code: code}
}

func (c *Catalog) init() {
	if c.subjects == nil {
		c.subjects = make(map[string]Subject)
	}
	if c.rejected == nil {
		c.rejected = make(map[string]*DataError)
	}
}

// CreditsFromDecimal converts stored credits into whole credits.
func CreditsFromDecimal(code string, value float64) (int, error) {
	whole, dataErr := wholeCredits(code, value)
	if dataErr != nil {
		return 0, dataErr
	}
	return whole, nil
}

func wholeCredits(code string, value float64) (int, *DataError) {
	if value < 0 {
		return 0, &DataError{Code: code, Reason: fmt.Sprintf("negative credits (%g)", value)}
	}
	if value != math.Trunc(value) || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, &DataError{Code: code, Reason: fmt.Sprintf("non-integer credits (%g)", value)}
	}
	return int(value), nil
}

// AddDecimal stores s with credits read from a decimal column. Negative or fractional
// credits reject the subject instead.
func (c *Catalog) AddDecimal(s Subject, credits float64) {
	whole, dataErr := wholeCredits(s.Code, credits)
	if dataErr != nil {
		c.Reject(s.Code, dataErr.Reason)
		return
	}
	s.Credits = whole
	c.Add(s)
}

// Has reports whether code is known to the catalog, allocatable or rejected.
func (c Catalog) Has(code string) bool {
	key := normalizeCode(code)
	if _, ok := c.subjects[key]; ok {
		return true
	}
	_, ok := c.rejected[key]
	return ok
}

// NewStudentInput counts the student's distinct passed subjects that belong to origin.
func NewStudentInput(record StudentCreditRecord, origin Catalog) StudentInput {
	passed := make(map[string]struct{}, len(record.Entries))
	for _, e := range record.Entries {
		if e.Passed && origin.Has(e.SubjectCode) {
			passed[normalizeCode(e.SubjectCode)] = struct{}{}
		}
	}
	return StudentInput{
		Record:                record,
		OriginalPassedCount:   len(passed),
		OriginalTotalSubjects: origin.Len(),
	}
}

// Decision is the closed set of outcomes for an external subject:
// Direct, Flexible or NotConvalidated.
type Decision interface {
	decision()
}

// Direct maps the external subject onto one internal subject.
type Direct struct {
	InternalCode string
}

// Flexible sends the external subject's credits to the free-elective pool.
type Flexible struct {
	Component Component
}

// NotConvalidated marks a subject the student must take under the new curriculum.
type NotConvalidated struct {
	Component Component
}

func (Direct) decision()          {}
func (Flexible) decision()        {}
func (NotConvalidated) decision() {}

// Equivalence pairs an external subject with the confirmed decision.
type Equivalence struct {
	ExternalCode string
	Decision     Decision
}

// StudentCreditRecord lists the subjects a student has completed.
type StudentCreditRecord struct {
	StudentID string
	Entries   []RecordEntry
}

// RecordEntry is one completed subject in a student's history.
type RecordEntry struct {
	SubjectCode string `json:"subject_code"`
	Passed      bool   `json:"passed"`
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
