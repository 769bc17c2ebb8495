package models

import "time"

// EquivalenceDecision is the stored form of a convalidation decision.
type EquivalenceDecision string

const (
	DecisionDirect          EquivalenceDecision = "direct"
	DecisionFlexible        EquivalenceDecision = "flexible"
	DecisionNotConvalidated EquivalenceDecision = "not_convalidated"
)

// EquivalenceSource records who confirmed a decision.
type EquivalenceSource string

const (
	SourceManual EquivalenceSource = "manual"
	SourceAuto   EquivalenceSource = "auto"
)

// Equivalence is a confirmed decision for one external subject. External subjects without a
// row are pending. ExternalCode and ExternalName are joined from external_subjects.
type Equivalence struct {
	ID                string              `db:"id" json:"id"`
	CurriculumID      string              `db:"curriculum_id" json:"curriculum_id"`
	ExternalSubjectID string              `db:"external_subject_id" json:"external_subject_id"`
	ExternalCode      string              `db:"external_code" json:"external_code"`
	ExternalName      string              `db:"external_name" json:"external_name"`
	Decision          EquivalenceDecision `db:"decision" json:"decision"`
	InternalCode      *string             `db:"internal_code" json:"internal_code,omitempty"`
	Component         *string             `db:"component" json:"component,omitempty"`
	Score             *float64            `db:"score" json:"score,omitempty"`
	Source            EquivalenceSource   `db:"source" json:"source"`
	ConfirmedAt       time.Time           `db:"confirmed_at" json:"confirmed_at"`
}
