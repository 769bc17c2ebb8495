package models

import (
	"time"

	"github.com/noah-isme/convalidation-api/pkg/convalidation"
)

// CreditLimitScopeGlobal is the scope of the institution-wide default ceilings.
const CreditLimitScopeGlobal = "global"

// CreditLimit stores one set of ceilings. Scope is a curriculum id or CreditLimitScopeGlobal.
// NULL columns mean unlimited.
type CreditLimit struct {
	Scope                string    `db:"scope" json:"scope"`
	FundamentalRequired  *int      `db:"fundamental_required" json:"fundamental_required"`
	FundamentalOptional  *int      `db:"fundamental_optional" json:"fundamental_optional"`
	ProfessionalRequired *int      `db:"professional_required" json:"professional_required"`
	ProfessionalOptional *int      `db:"professional_optional" json:"professional_optional"`
	Leveling             *int      `db:"leveling" json:"leveling"`
	Thesis               *int      `db:"thesis" json:"thesis"`
	FreeElective         *int      `db:"free_elective" json:"free_elective"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Limits converts the row into engine ceilings.
func (c CreditLimit) Limits() convalidation.CreditLimits {
	return convalidation.CreditLimits{
		FundamentalRequired:  c.FundamentalRequired,
		FundamentalOptional:  c.FundamentalOptional,
		ProfessionalRequired: c.ProfessionalRequired,
		ProfessionalOptional: c.ProfessionalOptional,
		Leveling:             c.Leveling,
		Thesis:               c.Thesis,
		FreeElective:         c.FreeElective,
	}
}

// NewCreditLimit builds a row for scope from engine ceilings.
func NewCreditLimit(scope string, limits convalidation.CreditLimits) CreditLimit {
	return CreditLimit{
		Scope:                scope,
		FundamentalRequired:  limits.FundamentalRequired,
		FundamentalOptional:  limits.FundamentalOptional,
		ProfessionalRequired: limits.ProfessionalRequired,
		ProfessionalOptional: limits.ProfessionalOptional,
		Leveling:             limits.Leveling,
		Thesis:               limits.Thesis,
		FreeElective:         limits.FreeElective,
	}
}
