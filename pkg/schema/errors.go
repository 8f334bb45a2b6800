package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeStore      = "STORE_ERROR"
	ErrCodeDecode     = "DECODE_ERROR"

	// Structural errors, detected while building the component graph.
	ErrCodeStructural                = "STRUCTURAL_ERROR"
	ErrCodeDuplicateIdentifier       = "DUPLICATE_IDENTIFIER"
	ErrCodeCyclicReference           = "CYCLIC_REFERENCE"
	ErrCodeUnknownTypeReference      = "UNKNOWN_TYPE_REFERENCE"
	ErrCodeUnknownComponentReference = "UNKNOWN_COMPONENT_REFERENCE"
	ErrCodeSharedChild               = "SHARED_CHILD"
	ErrCodeInvalidPredicate          = "INVALID_PREDICATE"
	ErrCodeInvalidDuration           = "INVALID_DURATION"

	// Extraction errors, detected per component while deriving its state machine.
	ErrCodeExtraction            = "EXTRACTION_ERROR"
	ErrCodeAmbiguousTransition   = "AMBIGUOUS_TRANSITION"
	ErrCodeAmbiguousInitial      = "AMBIGUOUS_INITIAL"
	ErrCodeUnreachableTerminal   = "UNREACHABLE_TERMINAL"
	ErrCodeUnknownStepReference  = "UNKNOWN_STEP_REFERENCE"
	ErrCodeUnknownStateReference = "UNKNOWN_STATE_REFERENCE"
	ErrCodeNoBehavior            = "NO_BEHAVIOR"

	// Registry errors.
	ErrCodeDuplicatePropertyID = "DUPLICATE_PROPERTY_ID"
	ErrCodeRegistrySealed      = "REGISTRY_SEALED"
)

// DavinciError is the structured error type for all davinci operations.
type DavinciError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Component string         `json:"component,omitempty"`
	Cause     error          `json:"-"`
}

func (e *DavinciError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("[%s] component %s: %s", e.Code, e.Component, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DavinciError) Unwrap() error {
	return e.Cause
}

// NewError creates a new DavinciError.
func NewError(code, message string) *DavinciError {
	return &DavinciError{Code: code, Message: message}
}

// NewErrorf creates a new DavinciError with a formatted message.
func NewErrorf(code, format string, args ...any) *DavinciError {
	return &DavinciError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithComponent attaches a component path to the error.
func (e *DavinciError) WithComponent(path string) *DavinciError {
	e.Component = path
	return e
}

// WithCause attaches an underlying cause.
func (e *DavinciError) WithCause(err error) *DavinciError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *DavinciError) WithDetails(details map[string]any) *DavinciError {
	e.Details = details
	return e
}

// Kind returns the "kind" detail of an extraction or structural error, or the
// code itself when no kind is recorded.
func (e *DavinciError) Kind() string {
	if k, ok := e.Details["kind"].(string); ok {
		return k
	}
	return e.Code
}
