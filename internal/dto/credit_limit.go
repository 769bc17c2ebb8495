package dto

import "github.com/noah-isme/convalidation-api/pkg/convalidation"

// CreditLimitsRequest replaces a curriculum's ceilings. Omitted or null fields are unlimited.
type CreditLimitsRequest struct {
	FundamentalRequired  *int `json:"fundamental_required"`
	FundamentalOptional  *int `json:"fundamental_optional"`
	ProfessionalRequired *int `json:"professional_required"`
	ProfessionalOptional *int `json:"professional_optional"`
	Leveling             *int `json:"leveling"`
	Thesis               *int `json:"thesis"`
	FreeElective         *int `json:"free_elective"`
}

// Limits converts the request into engine ceilings.
func (r CreditLimitsRequest) Limits() convalidation.CreditLimits {
	return convalidation.CreditLimits{
		FundamentalRequired:  r.FundamentalRequired,
		FundamentalOptional:  r.FundamentalOptional,
		ProfessionalRequired: r.ProfessionalRequired,
		ProfessionalOptional: r.ProfessionalOptional,
		Leveling:             r.Leveling,
		Thesis:               r.Thesis,
		FreeElective:         r.FreeElective,
	}
}

// CreditLimitsResponse reports the effective ceilings and where they came from.
type CreditLimitsResponse struct {
	Scope  string                     `json:"scope"`
	Source string                     `json:"source"`
	Limits convalidation.CreditLimits `json:"limits"`
}
