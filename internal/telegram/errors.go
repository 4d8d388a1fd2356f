package telegram

import (
	"errors"
	"fmt"
)

// APIError is a non-ok response from the Bot API. Callers can use errors.As to
// inspect it:
//
//	var apiErr *APIError
//	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests { ... }
type APIError struct {
	Method      string
	Code        int
	Description string
	// RetryAfter is set on flood-control errors (429).
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// IsAPIError checks whether err is an *APIError with the given code.
func IsAPIError(err error, code int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
