package vrchat

import "fmt"

// The client surfaces exactly three kinds of request failure. Callers match
// them with errors.As and handle each exhaustively:
//
//   - AuthError: the upstream considers the session invalid. Never retried;
//     escalates to the auth manager, which pauses polling.
//   - APIError: any other non-2xx response. Deterministic, never retried.
//   - NetworkError: connection-level failure. Retried with backoff.

// AuthError indicates the upstream rejected the session credentials.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("vrchat: unauthorized (status %d)", e.StatusCode)
}

// APIError is a non-auth, non-2xx upstream response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vrchat: api error (status %d)", e.StatusCode)
}

// NetworkError wraps timeouts, connection resets, DNS failures and other
// transport-level problems.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("vrchat: network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
