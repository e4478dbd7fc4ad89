package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeScopeFilter         = "SCOPE_FILTER_ERROR"
	ErrCodeActionExecution     = "ACTION_EXECUTION_ERROR"
	ErrCodeConditionEvaluation = "CONDITION_EVALUATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeSystemRule          = "SYSTEM_RULE_IMMUTABLE"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeExecution           = "EXECUTION_ERROR"
	ErrCodeStore               = "STORE_ERROR"
)

// StewardError is the structured error type for all steward operations.
type StewardError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Cause      error          `json:"-"`
}

func (e *StewardError) Error() string {
	if e.WorkflowID != "" {
		return fmt.Sprintf("[%s] workflow %s: %s", e.Code, e.WorkflowID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StewardError) Unwrap() error {
	return e.Cause
}

// NewError creates a new StewardError.
func NewError(code, message string) *StewardError {
	return &StewardError{Code: code, Message: message}
}

// NewErrorf creates a new StewardError with a formatted message.
func NewErrorf(code, format string, args ...any) *StewardError {
	return &StewardError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithWorkflow attaches a workflow ID to the error.
func (e *StewardError) WithWorkflow(workflowID string) *StewardError {
	e.WorkflowID = workflowID
	return e
}

// WithCause attaches an underlying cause.
func (e *StewardError) WithCause(err error) *StewardError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *StewardError) WithDetails(details map[string]any) *StewardError {
	e.Details = details
	return e
}
