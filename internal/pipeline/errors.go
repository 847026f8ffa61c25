package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind is one of the taxonomy tags stages and the orchestrator use
// to classify failures without relying on error-string matching.
type ErrorKind string

const (
	ErrConfig          ErrorKind = "config_error"
	ErrParse           ErrorKind = "parse_error"
	ErrValidation      ErrorKind = "validation_error"
	ErrDB              ErrorKind = "db_error"
	ErrDBTimeout       ErrorKind = "db_timeout"
	ErrLLM             ErrorKind = "llm_error"
	ErrTemplate        ErrorKind = "template_error"
	ErrCancelled       ErrorKind = "cancelled"
	ErrBudgetExhausted ErrorKind = "budget_exhausted"
)

// Error wraps a taxonomy Kind around a cause, so callers can branch on
// Kind with errors.As while still getting a wrapped error chain.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the taxonomy Kind from err, if err is (or wraps) a
// *Error. The zero ErrorKind is returned otherwise.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func newErr(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func NewConfigError(msg string, cause error) *Error     { return newErr(ErrConfig, msg, cause) }
func NewParseError(msg string, cause error) *Error      { return newErr(ErrParse, msg, cause) }
func NewValidationError(msg string, cause error) *Error { return newErr(ErrValidation, msg, cause) }
func NewDBError(msg string, cause error) *Error         { return newErr(ErrDB, msg, cause) }
func NewDBTimeoutError(msg string, cause error) *Error  { return newErr(ErrDBTimeout, msg, cause) }
func NewLLMError(msg string, cause error) *Error        { return newErr(ErrLLM, msg, cause) }
func NewTemplateError(msg string, cause error) *Error   { return newErr(ErrTemplate, msg, cause) }
func NewCancelledError(msg string) *Error                { return newErr(ErrCancelled, msg, nil) }
func NewBudgetExhaustedError(msg string) *Error           { return newErr(ErrBudgetExhausted, msg, nil) }
