package engine

import (
	"errors"
	"fmt"
)

// ErrorClass separates failures that abort a run before any target
// executes from failures recorded inline against a single target.
type ErrorClass string

const (
	// ErrorClassRun aborts the whole run before any execution.
	ErrorClassRun ErrorClass = "run"

	// ErrorClassTarget is recorded as a failed ExecutionResult and
	// never prevents subsequent targets from executing.
	ErrorClassTarget ErrorClass = "target"
)

// ErrorCode is the machine-readable failure code.
type ErrorCode string

// Run-level codes.
const (
	CodeRecipeInvalid              ErrorCode = "recipe_invalid"
	CodeAnalysisFailed             ErrorCode = "analysis_failed"
	CodeStateReadFailed            ErrorCode = "state_read_failed"
	CodeDependenciesNotSatisfied   ErrorCode = "dependencies_not_satisfied"
	CodeUserCancelledReapplication ErrorCode = "user_cancelled_reapplication"
	CodeNoApplicableProjects       ErrorCode = "no_applicable_projects"
	CodeNoApplicableScope          ErrorCode = "no_applicable_scope"
	CodeInvalidProjectPath         ErrorCode = "invalid_project_path"
)

// Target-level codes.
const (
	CodeEcosystemNotSupported ErrorCode = "ecosystem_not_supported"
	CodeVariantNotFound       ErrorCode = "variant_not_found"
	CodeMissingFixContent     ErrorCode = "missing_fix_content"
	CodeExecutionFailed       ErrorCode = "execution_failed"
)

// EngineError is a classified engine failure with a machine-readable
// code and structured details the caller can act on without re-deriving
// the cause.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is run-level or target-level.
	Class ErrorClass `json:"class"`

	// Code is the machine-readable failure code.
	Code ErrorCode `json:"code"`

	// Message is the human-readable failure message.
	Message string `json:"message"`

	// Details contains structured failure context (e.g. per-scope
	// rejection reasons, unmet requirement listings).
	Details map[string]interface{} `json:"details,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches on code, so callers can compare against sentinel values.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails attaches structured context and returns the error.
func (e *EngineError) WithDetails(details map[string]interface{}) *EngineError {
	e.Details = details
	return e
}

// NewRunError creates a run-level failure.
func NewRunError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassRun, Code: code, Message: message, Err: err}
}

// NewTargetError creates a target-level failure.
func NewTargetError(code ErrorCode, message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTarget, Code: code, Message: message, Err: err}
}

// CodeOf extracts the engine error code from an error chain, or "".
func CodeOf(err error) ErrorCode {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}
	return ""
}

// IsRunLevel reports whether the error aborts a whole run.
func IsRunLevel(err error) bool {
	var engineErr *EngineError
	return errors.As(err, &engineErr) && engineErr.Class == ErrorClassRun
}
