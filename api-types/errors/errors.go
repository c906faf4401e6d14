package errors

import (
	"encoding/json"
	"fmt"
)

// Error codes on the tracking API wire format.
const (
	CodeInternalError         = "INTERNAL_ERROR"
	CodeInvalidParameterValue = "INVALID_PARAMETER_VALUE"
	CodeResourceDoesNotExist  = "RESOURCE_DOES_NOT_EXIST"
	CodeResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	CodeUnauthenticated       = "UNAUTHENTICATED"
)

// ErrorResponse is the body of non-2xx responses from the tracking server.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`

	// not on the wire. carried for errors.Unwrap.
	Cause error `json:"-"`
}

func (e *ErrorResponse) UnmarshalJSON(bytes []byte) error {
	f := new(struct {
		ErrorCode *string `json:"error_code"`
		Message   *string `json:"message"`
	})
	if err := json.Unmarshal(bytes, f); err != nil {
		return err
	}

	if f.ErrorCode == nil {
		return fmt.Errorf(`required field missing: "error_code"`)
	}
	e.ErrorCode = *f.ErrorCode

	if f.Message != nil {
		e.Message = *f.Message
	}

	return nil
}

func (e ErrorResponse) Error() string {
	if e.Message == "" {
		return e.ErrorCode
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

func (e ErrorResponse) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to the status the server responds with.
func (e ErrorResponse) HTTPStatus() int {
	switch e.ErrorCode {
	case CodeResourceDoesNotExist:
		return 404
	case CodeInvalidParameterValue, CodeResourceAlreadyExists:
		return 400
	case CodeUnauthenticated:
		return 401
	default:
		return 500
	}
}
