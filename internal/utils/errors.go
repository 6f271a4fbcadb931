package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Login and session failures. The messages of the login outcomes are shown
// to the user verbatim.
var (
	ErrCaptchaUnsolvable   = errors.New("captcha type not supported")
	ErrInvalidCaptcha      = errors.New("Invalid Captcha")
	ErrInvalidCredentials  = errors.New("Invalid Username / Password")
	ErrUnknownLoginFailure = errors.New("Login failed for an unknown reason")
	ErrNoStoredCredential  = errors.New("no stored credential, please log in again")
	ErrCSRFTokenMissing    = errors.New("csrf token missing from portal response")
	ErrIncompleteSession   = errors.New("login returned incomplete session tokens")
	ErrNotLoggedIn         = errors.New("not logged in")
)

// HTTPError is returned by the portal client for any non-success status.
type HTTPError struct {
	StatusCode int    `json:"status_code"`
	Method     string `json:"method"`
	URL        string `json:"url"`
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("portal error (%d): %s %s", e.StatusCode, e.Method, e.URL)
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, method, url string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Method:     method,
		URL:        url,
	}
}

func statusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsAuthError reports whether err signals an expired portal session. The
// portal answers 401, 403 or 404 depending on the endpoint.
func IsAuthError(err error) bool {
	switch statusOf(err) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsForbiddenError checks if the error is a forbidden error
func IsForbiddenError(err error) bool {
	return statusOf(err) == http.StatusForbidden
}

// IsRetryableLoginError reports whether a failed login may succeed when
// attempted again with a fresh CAPTCHA.
func IsRetryableLoginError(err error) bool {
	return errors.Is(err, ErrInvalidCaptcha) ||
		errors.Is(err, ErrCaptchaUnsolvable) ||
		errors.Is(err, ErrIncompleteSession)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
