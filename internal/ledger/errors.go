package ledger

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrAPI marks any failure reported by the backend
	ErrAPI = errors.New("ledger api error")
	// ErrUnauthorized marks an expired, invalid or missing token
	ErrUnauthorized = errors.New("ledger api unauthorized")
)

// unauthorizedCodes are the envelope codes the backend uses for token problems.
var unauthorizedCodes = []int{20001, 20002, 20003, 30001}

// APIError is a failure reported by the backend, either through the
// response envelope or through the HTTP status.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("ledger api: code %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ledger api: http %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets callers match with errors.Is(err, ErrUnauthorized) or ErrAPI.
func (e *APIError) Unwrap() error {
	if e.Unauthorized() {
		return ErrUnauthorized
	}
	return ErrAPI
}

// Unauthorized reports whether the error means the token must be renewed.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == 401 || slices.Contains(unauthorizedCodes, e.Code)
}
