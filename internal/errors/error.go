package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryUpstream   Category = "upstream"
	CategoryValidation Category = "validation"
	CategoryProtocol   Category = "protocol"
	CategoryNotFound   Category = "not_found"
)

// Error is a structured error with a code, a user-facing message and
// optional per-field details.
type Error struct {
	// Code is a unique error identifier (e.g., "A020").
	Code string

	// Category is the error type (config, upstream, etc.).
	Category Category

	// Message is a short description safe to show to the user.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Fields maps form field names to validation messages.
	Fields map[string]string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	if e.Wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.Wrapped.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithMessage replaces the user-facing message.
func (e *Error) WithMessage(m string) *Error {
	e.Message = m
	return e
}

// WithField records a field-level message.
func (e *Error) WithField(field, msg string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
	return e
}

// WithFields merges field-level messages.
func (e *Error) WithFields(fields map[string]string) *Error {
	for k, v := range fields {
		e.WithField(k, v)
	}
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// FirstField returns the alphabetically first field with a message.
func (e *Error) FirstField() (string, string, bool) {
	if len(e.Fields) == 0 {
		return "", "", false
	}
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names[0], e.Fields[names[0]], true
}

// Status maps the category to an HTTP status code.
func (e *Error) Status() int {
	switch e.Category {
	case CategoryValidation:
		return http.StatusUnprocessableEntity
	case CategoryUpstream:
		return http.StatusBadGateway
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryProtocol:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type jsonError struct {
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Detail  string            `json:"detail,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// MarshalJSON renders the public part of the error. Wrapped causes are
// never exposed.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonError{
		Code:    e.Code,
		Message: e.Message,
		Detail:  e.Detail,
		Fields:  e.Fields,
	})
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error. An *Error anywhere in the
// chain is returned as is.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// As is errors.As for callers that import this package under its own name.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
