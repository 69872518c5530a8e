package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func unauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
}

func forbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func notFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

func expired() *DomainError {
	return domainError(http.StatusGone, "SHARE_EXPIRED", "Share link has expired", nil)
}

func passwordRequired(supplied bool) *DomainError {
	message := "Password required"
	if supplied {
		message = "Incorrect password"
	}
	return domainError(http.StatusUnauthorized, "PASSWORD_REQUIRED", message, map[string]any{"passwordRequired": true})
}

func validation(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func conflict() *DomainError {
	return domainError(http.StatusInternalServerError, "WRITE_CONFLICT", "Document was modified concurrently, please retry", map[string]any{"retryable": true})
}

func rateLimited(retryAfterSeconds int) *DomainError {
	return domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many password attempts", map[string]any{"retryAfterSeconds": retryAfterSeconds})
}

func unavailable(code, message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, code, message, nil)
}
