package convalidation

// CreditLimits holds one ceiling per component. A nil ceiling means unlimited.
// FreeElective doubles as the overflow destination for every other component.
type CreditLimits struct {
	FundamentalRequired  *int `json:"fundamental_required"`
	FundamentalOptional  *int `json:"fundamental_optional"`
	ProfessionalRequired *int `json:"professional_required"`
	ProfessionalOptional *int `json:"professional_optional"`
	Leveling             *int `json:"leveling"`
	Thesis               *int `json:"thesis"`
	FreeElective         *int `json:"free_elective"`
}

// Limit returns a pointer to value, convenient for building CreditLimits literals.
func Limit(value int) *int {
	return &value
}

// Ceiling returns the ceiling for c and whether it is finite.
func (l CreditLimits) Ceiling(c Component) (int, bool) {
	ptr := l.field(c)
	if ptr == nil {
		return 0, false
	}
	return *ptr, true
}

// Set overrides the ceiling for c. A nil value removes the cap.
func (l *CreditLimits) Set(c Component, value *int) {
	switch c {
	case ComponentFundamentalRequired:
		l.FundamentalRequired = value
	case ComponentFundamentalOptional:
		l.FundamentalOptional = value
	case ComponentProfessionalRequired:
		l.ProfessionalRequired = value
	case ComponentProfessionalOptional:
		l.ProfessionalOptional = value
	case ComponentLeveling:
		l.Leveling = value
	case ComponentThesis:
		l.Thesis = value
	case ComponentFreeElective:
		l.FreeElective = value
	}
}

// Validate rejects negative ceilings.
func (l CreditLimits) Validate() error {
	for _, c := range Components() {
		if ceiling, ok := l.Ceiling(c); ok && ceiling < 0 {
			return &ConfigurationError{Component: c, Reason: "ceiling must not be negative"}
		}
	}
	return nil
}

func (l CreditLimits) field(c Component) *int {
	switch c {
	case ComponentFundamentalRequired:
		return l.FundamentalRequired
	case ComponentFundamentalOptional:
		return l.FundamentalOptional
	case ComponentProfessionalRequired:
		return l.ProfessionalRequired
	case ComponentProfessionalOptional:
		return l.ProfessionalOptional
	case ComponentLeveling:
		return l.Leveling
	case ComponentThesis:
		return l.Thesis
	case ComponentFreeElective:
		return l.FreeElective
	default:
		return nil
	}
}
