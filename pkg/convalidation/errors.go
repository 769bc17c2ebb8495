package convalidation

import "fmt"

// ConfigurationError reports malformed credit ceilings. It is fatal for a batch.
type ConfigurationError struct {
	Component Component
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("invalid credit limits: %s", e.Reason)
	}
	return fmt.Sprintf("invalid credit limit for %s: %s", e.Component, e.Reason)
}

// LookupError reports an equivalence that references a subject absent from a catalog.
type LookupError struct {
	Catalog string
	Code    string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s subject %q not found", e.Catalog, e.Code)
}

// DataError reports a subject whose data cannot be allocated.
type DataError struct {
	Code   string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("subject %q excluded: %s", e.Code, e.Reason)
}

// Warning is a recovered, per-equivalence problem attached to a student's result.
type Warning struct {
	Kind        string `json:"kind"`
	SubjectCode string `json:"subject_code"`
	Message     string `json:"message"`
}

const (
	WarningLookup    = "lookup"
	WarningData      = "data"
	WarningMalformed = "malformed"
)

func warningFromError(code string, err error) Warning {
	kind := WarningMalformed
	switch err.(type) {
	case *LookupError:
		kind = WarningLookup
	case *DataError:
		kind = WarningData
	}
	return Warning{Kind: kind, SubjectCode: code, Message: err.Error()}
}
