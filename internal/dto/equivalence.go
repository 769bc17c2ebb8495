package dto

import "github.com/noah-isme/convalidation-api/internal/models"

// SetEquivalenceRequest confirms a decision for one external subject.
type SetEquivalenceRequest struct {
	Decision     models.EquivalenceDecision `json:"decision" validate:"required,oneof=direct flexible not_convalidated"`
	InternalCode string                     `json:"internal_code" validate:"omitempty,max=32"`
	Component    string                     `json:"component" validate:"omitempty,max=64"`
}

// SuggestionResponse is one ranked candidate for an external subject.
type SuggestionResponse struct {
	InternalCode string  `json:"internal_code"`
	InternalName string  `json:"internal_name"`
	Credits      float64 `json:"credits"`
	Component    string  `json:"component"`
	Score        float64 `json:"score"`
	ExactCode    bool    `json:"exact_code"`
}

// SuggestionsResponse lists suggestions for one external subject.
type SuggestionsResponse struct {
	ExternalSubjectID string               `json:"external_subject_id"`
	ExternalCode      string               `json:"external_code"`
	ExternalName      string               `json:"external_name"`
	Suggestions       []SuggestionResponse `json:"suggestions"`
}

// AutoMatchPair is one decision persisted by bulk auto-match.
type AutoMatchPair struct {
	ExternalSubjectID string  `json:"external_subject_id"`
	ExternalCode      string  `json:"external_code"`
	InternalCode      string  `json:"internal_code"`
	Score             float64 `json:"score"`
	ExactCode         bool    `json:"exact_code"`
}

// AutoMatchResponse summarises a bulk auto-match.
type AutoMatchResponse struct {
	Accepted  []AutoMatchPair `json:"accepted"`
	Pending   int             `json:"pending"`
	Unmatched int             `json:"unmatched"`
}
