// Package problem renders the service's three error classes (§7) into the
// wire-level OperationOutcome error payload named in spec §6. Adapted from
// the teacher's RFC 7807 pkg/api.ProblemDetail/WriteError, reshaped into the
// FHIR OperationOutcome issue-list convention the spec calls for.
package problem

import (
	"fmt"
)

// Severity mirrors the FHIR IssueSeverity value set.
type Severity string

const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Code is a coarse machine-readable issue code.
type Code string

const (
	CodeNotFound    Code = "not-found"
	CodeForbidden   Code = "forbidden"
	CodeConflict    Code = "conflict"
	CodeGone        Code = "deleted"
	CodeInvalid     Code = "invalid"
	CodeProcessing  Code = "processing"
	CodeStructure   Code = "structure"
	CodeRequired    Code = "required"
	CodeException   Code = "exception"
	CodeSecurity    Code = "security"
	CodeBusinessRule Code = "business-rule"
)

// Issue is one entry in an OperationOutcome.
type Issue struct {
	Severity   Severity `json:"severity"`
	Code       Code     `json:"code"`
	Details    string   `json:"details"`
	Expression string   `json:"expression,omitempty"`
}

// OperationOutcome is the error-response body for every 4xx/5xx (§6).
type OperationOutcome struct {
	ResourceType string  `json:"resourceType"`
	Issues       []Issue `json:"issue"`
}

// New builds a single-issue OperationOutcome.
func New(severity Severity, code Code, details string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issues: []Issue{{
			Severity: severity,
			Code:     code,
			Details:  details,
		}},
	}
}

// WithExpression attaches a slash-delimited field path (§7 class 2, codec
// errors) to the last issue in the outcome.
func (o *OperationOutcome) WithExpression(expression string) *OperationOutcome {
	if len(o.Issues) == 0 {
		return o
	}
	o.Issues[len(o.Issues)-1].Expression = expression
	return o
}

// Error implements the error interface so an OperationOutcome can be
// returned and wrapped like any other error.
func (o *OperationOutcome) Error() string {
	if len(o.Issues) == 0 {
		return "operation outcome: no issues"
	}
	first := o.Issues[0]
	return fmt.Sprintf("%s: %s", first.Code, first.Details)
}
