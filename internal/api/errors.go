package api

import (
	"errors"
	"fmt"
)

// Code is the machine-readable discriminant attached to every remote
// error. It is set exactly once, at the client boundary; downstream code
// must branch on the Code, never on message text.
type Code string

const (
	// CodeUnauthorized marks a 401: the session token has been rejected
	// and cleared from the secret store.
	CodeUnauthorized Code = "unauthorized"
	// CodeQuotaExceeded marks the backend's free message limit rejection.
	CodeQuotaExceeded Code = "quota_exceeded"
	// CodeNotFound marks a 404.
	CodeNotFound Code = "not_found"
	// CodeRemote marks any other remote-side failure.
	CodeRemote Code = "remote"
)

// Error is a typed remote API error.
type Error struct {
	Status  int
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("api: request failed (status %d)", e.Status)
}

// IsCode reports whether err is an *Error carrying the given code.
func IsCode(err error, code Code) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsUnauthorized reports whether err is an authentication rejection.
func IsUnauthorized(err error) bool {
	return IsCode(err, CodeUnauthorized)
}

// IsQuotaExceeded reports whether err is a free-tier quota rejection.
func IsQuotaExceeded(err error) bool {
	return IsCode(err, CodeQuotaExceeded)
}
