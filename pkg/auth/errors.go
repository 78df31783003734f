package auth

import "fmt"

// AuthError indicates a failed credential exchange or a rejected token
// (401/403 from the API). It is never retried by the executor; the pager
// may force a single token refresh before surfacing it.
type AuthError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("auth error (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("auth error: %s: %v", e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("auth error (status %d): %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("auth error: %s", e.Message)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthError) Unwrap() error {
	return e.Err
}
