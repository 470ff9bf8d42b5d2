package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeExtractionEmpty      ErrorType = "extraction_empty"
	ErrTypeIntentUnresolved     ErrorType = "intent_unresolved"
	ErrTypeSynthesisUnavailable ErrorType = "synthesis_unavailable"
	ErrTypeExecutionFault       ErrorType = "execution_fault"
	ErrTypeExecutionTimeout     ErrorType = "execution_timeout"
	ErrTypeSchemaMismatch       ErrorType = "schema_mismatch"
	ErrTypeInsufficientInputs   ErrorType = "insufficient_inputs"
	ErrTypeValidation           ErrorType = "validation"
	ErrTypeLLM                  ErrorType = "llm"
	ErrTypeRateLimit            ErrorType = "rate_limit"
	ErrTypeStorage              ErrorType = "storage"
	ErrTypeNotFound             ErrorType = "not_found"
	ErrTypeConfig               ErrorType = "config"
	ErrTypeInternal             ErrorType = "internal"
)

// Stage identifies the pipeline stage an error originated from. Failed
// responses always name their stage so callers can tell a classification
// problem from an execution one.
type Stage string

const (
	StageExtraction     Stage = "extraction"
	StageClassification Stage = "classification"
	StageDetection      Stage = "detection"
	StageSynthesis      Stage = "synthesis"
	StageValidation     Stage = "validation"
	StageExecution      Stage = "execution"
	StageFormatting     Stage = "formatting"
	StageLoading        Stage = "loading"
)

// Error represents a structured error with type, originating stage, and
// optional resolution suggestions. Program carries the synthesized program
// text when synthesis or execution had been reached, for debugging.
type Error struct {
	Type        ErrorType
	Stage       Stage
	Message     string
	Cause       error
	Program     string
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithStage records the pipeline stage the error originated from
func (e *Error) WithStage(stage Stage) *Error {
	e.Stage = stage
	return e
}

// WithProgram attaches the program text that was being synthesized or
// executed when the error occurred
func (e *Error) WithProgram(program string) *Error {
	e.Program = program
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// AsError extracts the structured error from a chain, if present
func AsError(err error) (*Error, bool) {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr, true
	}

	return nil, false
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// GetStage returns the originating stage if it's a structured error
func GetStage(err error) Stage {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Stage
	}

	return ""
}

// GetProgram returns the attached program text if any
func GetProgram(err error) string {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Program
	}

	return ""
}

// GetSuggestions returns resolution suggestions if it's a structured error
func GetSuggestions(err error) []string {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Suggestions
	}

	return nil
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewInsufficientInputs creates a precondition failure with an actionable
// message, e.g. a join requested with fewer than two tables.
func NewInsufficientInputs(message string) *Error {
	return New(ErrTypeInsufficientInputs, message).WithStage(StageValidation)
}
