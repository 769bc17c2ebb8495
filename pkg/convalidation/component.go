package convalidation

import "strings"

// Component is one of the fixed categories of a degree's credit structure.
type Component string

const (
	ComponentFundamentalRequired  Component = "fundamental_required"
	ComponentFundamentalOptional  Component = "fundamental_optional"
	ComponentProfessionalRequired Component = "professional_required"
	ComponentProfessionalOptional Component = "professional_optional"
	ComponentLeveling             Component = "leveling"
	ComponentThesis               Component = "thesis"
	ComponentFreeElective         Component = "free_elective"
)

// ThesisCode identifies the degree project subject regardless of its declared type.
const ThesisCode = "TG"

// Raw subject type values accepted by Classify.
const (
	TypeFundamental          = "fundamental"
	TypeOptionalFundamental  = "optional_fundamental"
	TypeProfessional         = "professional"
	TypeOptionalProfessional = "optional_professional"
	TypeLeveling             = "leveling"
	TypeThesis               = "thesis"
	TypeFreeElective         = "free_elective"
)

// Components lists every component in reporting order.
func Components() []Component {
	return []Component{
		ComponentFundamentalRequired,
		ComponentFundamentalOptional,
		ComponentProfessionalRequired,
		ComponentProfessionalOptional,
		ComponentLeveling,
		ComponentThesis,
		ComponentFreeElective,
	}
}

// Valid reports whether c is one of the known components.
func (c Component) Valid() bool {
	switch c {
	case ComponentFundamentalRequired, ComponentFundamentalOptional,
		ComponentProfessionalRequired, ComponentProfessionalOptional,
		ComponentLeveling, ComponentThesis, ComponentFreeElective:
		return true
	default:
		return false
	}
}

// Label returns a human readable name used in explanations and exports.
func (c Component) Label() string {
	switch c {
	case ComponentFundamentalRequired:
		return "required fundamentals"
	case ComponentFundamentalOptional:
		return "optional fundamentals"
	case ComponentProfessionalRequired:
		return "required professional"
	case ComponentProfessionalOptional:
		return "optional professional"
	case ComponentLeveling:
		return "leveling"
	case ComponentThesis:
		return "thesis"
	case ComponentFreeElective:
		return "free electives"
	default:
		return string(c)
	}
}

// Classify maps raw subject flags onto a component. First matching rule wins and
// unknown types fall back to ComponentFundamentalRequired.
func Classify(subjectType string, isRequired, isLeveling bool, code string) Component {
	t := strings.ToLower(strings.TrimSpace(subjectType))

	if isLeveling || t == TypeLeveling {
		return ComponentLeveling
	}
	if strings.EqualFold(strings.TrimSpace(code), ThesisCode) || t == TypeThesis {
		return ComponentThesis
	}

	switch t {
	case TypeFundamental:
		if isRequired {
			return ComponentFundamentalRequired
		}
		return ComponentFundamentalOptional
	case TypeOptionalFundamental:
		return ComponentFundamentalOptional
	case TypeProfessional:
		if isRequired {
			return ComponentProfessionalRequired
		}
		return ComponentProfessionalOptional
	case TypeOptionalProfessional:
		return ComponentProfessionalOptional
	case TypeFreeElective:
		return ComponentFreeElective
	default:
		return ComponentFundamentalRequired
	}
}
