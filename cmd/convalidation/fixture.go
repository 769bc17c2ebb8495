package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/noah-isme/convalidation-api/pkg/convalidation"
)

// fixture is the offline description of one curriculum change.
type fixture struct {
	Limits       convalidation.CreditLimits `json:"limits"`
	Catalog      []fixtureSubject           `json:"catalog"`
	External     []fixtureSubject           `json:"external"`
	Equivalences []fixtureEquivalence       `json:"equivalences"`
	Students     []fixtureStudent           `json:"students"`
}

type fixtureSubject struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Credits    float64 `json:"credits"`
	Type       string  `json:"type"`
	IsRequired bool    `json:"is_required"`
	IsLeveling bool    `json:"is_leveling"`
}

type fixtureEquivalence struct {
	ExternalCode string `json:"external_code"`
	Decision     string `json:"decision"`
	InternalCode string `json:"internal_code"`
	Component    string `json:"component"`
}

type fixtureStudent struct {
	StudentID string                      `json:"student_id"`
	Entries   []convalidation.RecordEntry `json:"entries"`
}

func loadFixture(path string) (*fixture, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	var f fixture
	if err := json.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fixture JSON: %w", err)
	}
	return &f, nil
}

// catalog indexes subjects, rejecting those whose credits are not whole and non-negative.
func catalog(subjects []fixtureSubject) convalidation.Catalog {
	c := convalidation.NewCatalog(nil)
	for _, s := range subjects {
		c.AddDecimal(convalidation.Subject{
			Code:       s.Code,
			Name:       s.Name,
			Type:       s.Type,
			IsRequired: s.IsRequired,
			IsLeveling: s.IsLeveling,
		}, s.Credits)
	}
	return c
}

// candidates converts catalog rows for the matcher. Credits are irrelevant to scoring.
func candidates(subjects []fixtureSubject) []convalidation.Subject {
	out := make([]convalidation.Subject, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, convalidation.Subject{Code: s.Code, Name: s.Name, Type: s.Type, IsRequired: s.IsRequired, IsLeveling: s.IsLeveling})
	}
	return out
}

func (f *fixture) equivalences() []convalidation.Equivalence {
	out := make([]convalidation.Equivalence, 0, len(f.Equivalences))
	for _, eq := range f.Equivalences {
		item := convalidation.Equivalence{ExternalCode: eq.ExternalCode}
		switch eq.Decision {
		case "direct":
			item.Decision = convalidation.Direct{InternalCode: eq.InternalCode}
		case "flexible":
			component := convalidation.Component(eq.Component)
			if component == "" {
				component = convalidation.ComponentFreeElective
			}
			item.Decision = convalidation.Flexible{Component: component}
		case "not_convalidated":
			item.Decision = convalidation.NotConvalidated{Component: convalidation.Component(eq.Component)}
		}
		out = append(out, item)
	}
	return out
}

func (f *fixture) snapshot() convalidation.Snapshot {
	return convalidation.Snapshot{
		Limits:           f.Limits,
		Equivalences:     f.equivalences(),
		Internal:         catalog(f.Catalog),
		External:         catalog(f.External),
		NewTotalSubjects: len(f.Catalog),
	}
}

// inputs counts each student's distinct passes among the origin curriculum's subjects.
func (f *fixture) inputs() []convalidation.StudentInput {
	origin := catalog(f.External)
	out := make([]convalidation.StudentInput, 0, len(f.Students))
	for _, student := range f.Students {
		record := convalidation.StudentCreditRecord{StudentID: student.StudentID, Entries: student.Entries}
		out = append(out, convalidation.NewStudentInput(record, origin))
	}
	return out
}
