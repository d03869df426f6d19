package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryProtocol Category = "protocol"
	CategorySession  Category = "session"
	CategoryDispatch Category = "dispatch"
	CategoryRouting  Category = "routing"
	CategoryRender   Category = "render"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// MotionError is a structured error with a stable code, an explanation and
// a hint for resolving it.
type MotionError struct {
	// Code is a unique error identifier (e.g., "M001").
	Code string

	// Category is the error type (protocol, session, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Fields carries operation context such as the session id or topic.
	Fields map[string]string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *MotionError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *MotionError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *MotionError) WithSuggestion(s string) *MotionError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *MotionError) WithDetail(d string) *MotionError {
	e.Detail = d
	return e
}

// WithField records a piece of operation context.
func (e *MotionError) WithField(key, value string) *MotionError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
	return e
}

// Wrap wraps another error.
func (e *MotionError) Wrap(err error) *MotionError {
	e.Wrapped = err
	return e
}

// New creates a MotionError from a registered error code.
func New(code string) *MotionError {
	template, ok := registry[code]
	if !ok {
		return &MotionError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &MotionError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new MotionError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *MotionError {
	return &MotionError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a MotionError.
// An error that already carries a MotionError anywhere in its chain is
// returned as that MotionError.
func FromError(err error, code string) *MotionError {
	if err == nil {
		return nil
	}
	var me *MotionError
	if stderrors.As(err, &me) {
		return me
	}
	return New(code).Wrap(err)
}

// CodeOf returns the code of the first MotionError in err's chain, or "".
func CodeOf(err error) string {
	var me *MotionError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ""
}
