// Package errors defines the stable error taxonomy for the script engine.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents stable error codes for all failure modes
type Code string

const (
	// ValidationFailed indicates missing or malformed required fields
	ValidationFailed Code = "VALIDATION_FAILED"
	// UnsafeContent indicates the content safety screen rejected the script
	UnsafeContent Code = "UNSAFE_CONTENT"
	// DuplicateContent indicates an identical content hash already exists for the owner
	DuplicateContent Code = "DUPLICATE_CONTENT"
	// NotAuthorized indicates the actor may not mutate the target row
	NotAuthorized Code = "NOT_AUTHORIZED"
	// NotFound indicates the requested entity does not exist
	NotFound Code = "NOT_FOUND"
	// AnalysisUnavailable indicates the AI analysis dependency failed; this code
	// never surfaces to callers, it is downgraded to a fallback analysis row
	AnalysisUnavailable Code = "ANALYSIS_UNAVAILABLE"
	// StoreFailure indicates the store of record rejected or lost the write
	StoreFailure Code = "STORE_FAILURE"
	// Internal indicates an unexpected error
	Internal Code = "INTERNAL_ERROR"
)

// Error is a coded error with optional details and a wrapped cause.
type Error struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a new coded error around a cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails attaches details to the error and returns it.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the Code from err, or Internal when err carries none.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// ConflictDetails identifies the existing script on a duplicate-content conflict,
// so the client can redirect to an update flow instead.
type ConflictDetails struct {
	ExistingID    string `json:"existingId"`
	ExistingTitle string `json:"existingTitle"`
}

// Duplicate builds the conflict error for an owner-scoped content hash collision.
func Duplicate(existingID, existingTitle string) *Error {
	return New(DuplicateContent, "identical script content already exists for this user").
		WithDetails(ConflictDetails{ExistingID: existingID, ExistingTitle: existingTitle})
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors aggregates field-level failures into one coded error.
type ValidationErrors struct {
	Fields []FieldError `json:"errors"`
}

// Add records a field failure.
func (v *ValidationErrors) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field failed.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Fields) > 0
}

// Error implements the error interface
func (v *ValidationErrors) Error() string {
	parts := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "[" + string(ValidationFailed) + "] " + strings.Join(parts, "; ")
}

// AsError returns the aggregate as a coded error, or nil when empty.
func (v *ValidationErrors) AsError() error {
	if !v.HasErrors() {
		return nil
	}
	return New(ValidationFailed, "request validation failed").WithDetails(v.Fields)
}
