// Package rejection defines the structured errors returned when a request
// is refused before any evidence is produced.
package rejection

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Code identifies the reason a request was rejected.
type Code string

const (
	CodePayloadTooLarge Code = "payload_too_large"
	CodeDepthExceeded   Code = "depth_limit_exceeded"
	CodeInvalidJSON     Code = "invalid_json"
	CodeUnknownProfile  Code = "unknown_profile"
	CodeInvalidRequest  Code = "invalid_request"
	CodeRateLimited     Code = "rate_limited"
)

// Error is a terminal, client-facing rejection. It marshals to the wire
// shape `{"error": code, ...details}`.
type Error struct {
	Code       Code
	LimitBytes int64
	Limit      int
	Available  []string
	Details    string
	cause      error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// MarshalJSON writes only the fields that belong to the code.
func (e *Error) MarshalJSON() ([]byte, error) {
	body := map[string]any{"error": e.Code}
	switch e.Code {
	case CodePayloadTooLarge:
		body["limit_bytes"] = e.LimitBytes
	case CodeDepthExceeded:
		body["limit"] = e.Limit
	case CodeUnknownProfile:
		available := e.Available
		if available == nil {
			available = []string{}
		}
		body["available"] = available
	case CodeInvalidRequest:
		if e.Details != "" {
			body["details"] = e.Details
		}
	}
	return json.Marshal(body)
}

// Status maps the code to an HTTP status.
func (e *Error) Status() int {
	switch e.Code {
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnknownProfile:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// PayloadTooLarge rejects input larger than limit bytes.
func PayloadTooLarge(limit int64) *Error {
	return &Error{Code: CodePayloadTooLarge, LimitBytes: limit}
}

// DepthExceeded rejects input nested deeper than limit.
func DepthExceeded(limit int) *Error {
	return &Error{Code: CodeDepthExceeded, Limit: limit}
}

// InvalidJSON rejects input that does not parse.
func InvalidJSON(cause error) *Error {
	return &Error{Code: CodeInvalidJSON, cause: cause}
}

// UnknownProfile rejects a profile id that is not registered.
func UnknownProfile(available []string) *Error {
	return &Error{Code: CodeUnknownProfile, Available: available}
}

// InvalidRequest rejects malformed request parameters.
func InvalidRequest(details string, cause error) *Error {
	return &Error{Code: CodeInvalidRequest, Details: details, cause: cause}
}

// RateLimited rejects a request over the configured rate.
func RateLimited() *Error {
	return &Error{Code: CodeRateLimited}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var rej *Error
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// CodeOf returns the rejection code in err's chain, or "" if none.
func CodeOf(err error) Code {
	if rej, ok := As(err); ok {
		return rej.Code
	}
	return ""
}
