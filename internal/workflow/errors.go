package workflow

import (
	"errors"
	"fmt"
)

// Code is a stable reason code carried by every domain error
type Code string

const (
	CodeInvestigationIncomplete Code = "INVESTIGATION_INCOMPLETE"
	CodeEvidenceRequired        Code = "EVIDENCE_REQUIRED"
	CodeCausalAnalysisRequired  Code = "CAUSAL_ANALYSIS_REQUIRED"
	CodeActionPlanRequired      Code = "ACTION_PLAN_REQUIRED"
	CodeIncidentConcluded       Code = "INCIDENT_CONCLUDED"
	CodeInvalidTransition       Code = "INVALID_TRANSITION"
	CodeAlreadyEscalated        Code = "ALREADY_ESCALATED"
	CodeDeadlineAlertPending    Code = "DEADLINE_ALERT_PENDING"
	CodeNoManagerForSector      Code = "NO_MANAGER_FOR_SECTOR"
	CodeNoOversightContact      Code = "NO_OVERSIGHT_CONTACT"
	CodeInvalidField            Code = "INVALID_FIELD"
	CodeInvalidDeadline         Code = "INVALID_DEADLINE"
	CodeNotFound                Code = "NOT_FOUND"
	CodeConflict                Code = "CONFLICT"
	CodeDuplicate               Code = "DUPLICATE"
	CodeForbidden               Code = "FORBIDDEN"
	CodeClassifierUnavailable   Code = "CLASSIFIER_UNAVAILABLE"
	CodeDispatchFailed          Code = "DISPATCH_FAILED"
	CodeSweepInProgress         Code = "SWEEP_IN_PROGRESS"
)

// Error is a reason-coded domain error
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same call may succeed later without different input
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeClassifierUnavailable, CodeDispatchFailed, CodeConflict, CodeSweepInProgress:
		return true
	}
	return false
}

// Errorf builds an *Error with a formatted message
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying cause
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf extracts the reason code of err, or "" when err is not a domain error
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is a domain error with the given code
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether err is a domain error worth retrying
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
