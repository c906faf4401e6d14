package errors

import (
	apierr "github.com/opst/trackfab-api-types/errors"
)

// Builders for tracking API error bodies.
//
// Handlers return these as errors; the server's HTTPErrorHandler writes
// them with the status code their error code maps to.

func NewErrorResponse(code string, message string, cause error) *apierr.ErrorResponse {
	return &apierr.ErrorResponse{
		ErrorCode: code,
		Message:   message,
		Cause:     cause,
	}
}

func InternalServerError(err error) *apierr.ErrorResponse {
	return NewErrorResponse(apierr.CodeInternalError, "unexpected error", err)
}

func InvalidParameter(message string, err error) *apierr.ErrorResponse {
	return NewErrorResponse(apierr.CodeInvalidParameterValue, message, err)
}

func NotFound(message string, err error) *apierr.ErrorResponse {
	return NewErrorResponse(apierr.CodeResourceDoesNotExist, message, err)
}

func AlreadyExists(message string, err error) *apierr.ErrorResponse {
	return NewErrorResponse(apierr.CodeResourceAlreadyExists, message, err)
}

func Unauthenticated(message string, err error) *apierr.ErrorResponse {
	return NewErrorResponse(apierr.CodeUnauthenticated, message, err)
}
