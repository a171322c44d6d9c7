// Package errors provides structured gateway errors with stable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Admission errors
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"

	// API credential errors
	CodeAPIKeyRequired Code = "API_KEY_REQUIRED"
	CodeInvalidAPIKey  Code = "INVALID_API_KEY"

	// Request errors
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeInvalidJSON Code = "INVALID_JSON"
	CodeRateLimited Code = "RATE_LIMITED"

	// Lookup errors
	CodeUserNotFound Code = "USER_NOT_FOUND"
	CodeNotFound     Code = "NOT_FOUND"

	// Availability errors
	CodeGatewayUnavailable Code = "WEBSOCKET_UNAVAILABLE"
	CodeTokenIssuer        Code = "TOKEN_ISSUER_UNAVAILABLE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthorized, CodeAPIKeyRequired:
		return http.StatusUnauthorized
	case CodeForbidden, CodeInvalidAPIKey:
		return http.StatusForbidden
	case CodeValidation, CodeInvalidJSON:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUserNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeGatewayUnavailable, CodeTokenIssuer:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
