// Package apperr defines the client-facing error taxonomy. Stores and services
// return these (optionally wrapping a cause) and the HTTP boundary maps the
// code to a status and JSON body.
package apperr

import (
	"errors"
	"strings"
)

// Code classifies an error for the client.
type Code string

const (
	CodeValidation           Code = "validation"
	CodeReferentialViolation Code = "referential_violation"
	CodeNotFound             Code = "not_found"
	CodeStoreFailure         Code = "store_failure"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	for _, f := range e.Fields {
		b.WriteString("; ")
		b.WriteString(f.Field)
		b.WriteString(" ")
		b.WriteString(f.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies err under code. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// Validation builds a validation error from a list of field errors.
func Validation(fields ...FieldError) *Error {
	return &Error{Code: CodeValidation, Message: "Validation failed.", Fields: fields}
}

// Invalid builds a validation error for a single field, keeping the cause.
func Invalid(field, message string, cause error) *Error {
	e := Validation(FieldError{Field: field, Message: message})
	e.Err = cause
	return e
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of err. Unclassified errors are store failures.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeStoreFailure
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
