// Package web defines common components for a web application.
package web

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInternal is shown to clients instead of unexpected errors.
var ErrInternal = errors.New("internal")

// Response holds the common response type for all APIs.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Error wraps a given err into json frinedly struct.
func Error(err error) Response {
	return Response{Error: err.Error()}
}

// Data wraps the payload into the response envelope.
func Data(v any) Response {
	return Response{Data: v}
}

// BindError converts a gin binding error into a response.
//
// Validation errors are reported for the first failing field, anything else
// (malformed JSON, wrong types) is reported as is.
func BindError(err error) Response {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		field := ve[0]
		return Response{Error: field.Field() + GetErrorMsg(field)}
	}

	return Error(err)
}

// GetErrorMsg returns a human readable ending for the failed validation rule.
func GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return " field is required"
	case "min":
		return fmt.Sprintf(" must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf(" must be at most %s", fe.Param())
	case "amount":
		return " must be a positive decimal amount"
	case "balance":
		return " must be a non-negative decimal amount"
	}

	return " is invalid"
}
