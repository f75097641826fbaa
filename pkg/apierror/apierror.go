package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error is an error with an HTTP status. Field errors render as a
// field-keyed object; everything else renders as {"detail": ...}.
type Error struct {
	Status int
	Detail string
	Fields map[string][]string
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for k, v := range e.Fields {
			parts = append(parts, k+": "+strings.Join(v, " "))
		}
		return fmt.Sprintf("%d: %s", e.Status, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Detail)
}

func (e *Error) Body() interface{} {
	if len(e.Fields) > 0 {
		return e.Fields
	}
	return map[string]string{"detail": e.Detail}
}

func New(status int, detail string) *Error {
	return &Error{Status: status, Detail: detail}
}

func NotFound() *Error {
	return New(http.StatusNotFound, "Not found.")
}

func BadRequest(detail string) *Error {
	return New(http.StatusBadRequest, detail)
}

func Unauthorized(detail string) *Error {
	return New(http.StatusUnauthorized, detail)
}

func NotAuthenticated() *Error {
	return Unauthorized("Authentication credentials were not provided.")
}

func Forbidden() *Error {
	return New(http.StatusForbidden, "You do not have permission to perform this action.")
}

func Conflict(detail string) *Error {
	return New(http.StatusConflict, detail)
}

func Internal() *Error {
	return New(http.StatusInternalServerError, "Internal server error.")
}

// Field builds a 400 for a single field.
func Field(name, msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Fields: map[string][]string{name: {msg}}}
}

// Fields collects field errors for one response.
type Fields map[string][]string

func (f Fields) Add(name, msg string) {
	f[name] = append(f[name], msg)
}

func (f Fields) Err() error {
	if len(f) == 0 {
		return nil
	}
	return &Error{Status: http.StatusBadRequest, Fields: f}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// FromBinding turns a gin binding failure into a 400.
func FromBinding(err error) *Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := Fields{}
		for _, fe := range verrs {
			fields.Add(fieldName(fe), validationMessage(fe))
		}
		return &Error{Status: http.StatusBadRequest, Fields: fields}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return Field(typeErr.Field, fmt.Sprintf("Incorrect type. Expected %s.", typeErr.Type.String()))
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return BadRequest("JSON parse error - " + err.Error())
	}
	if errors.Is(err, io.EOF) {
		return BadRequest("Request body is empty.")
	}
	return BadRequest(err.Error())
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "gte":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "lte":
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("%q is not a valid UUID.", fe.Value())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fe.Value())
	case "datetime":
		return "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
	case "isbn":
		return "Enter a valid ISBN-10 or ISBN-13."
	case "dive":
		return "Invalid item."
	}
	return fmt.Sprintf("Failed on the %q rule.", fe.Tag())
}
