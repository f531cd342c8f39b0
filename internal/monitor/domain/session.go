package domain

import "time"

// SecondFactorKind identifies which second-factor challenge the service asked
// for during login.
type SecondFactorKind string

const (
	SecondFactorNone  SecondFactorKind = ""
	SecondFactorTOTP  SecondFactorKind = "totp"
	SecondFactorEmail SecondFactorKind = "emailOtp"
)

// Session is the credential material for an authenticated exchange with the
// upstream service. It is an explicit value owned by the auth manager and
// handed to the API client per call, never mutated from multiple call sites.
type Session struct {
	// AuthToken is the opaque session cookie issued after a successful
	// credential exchange. Empty means unauthenticated.
	AuthToken string

	// SecondFactorToken is the opaque cookie issued after a successful
	// second-factor verification. Never set without AuthToken.
	SecondFactorToken string

	// PendingSecondFactor is only meaningful mid-login, between the
	// credential exchange and the verification step.
	PendingSecondFactor SecondFactorKind

	EstablishedAt time.Time
}

// Active reports whether the session carries a usable auth token.
func (s Session) Active() bool {
	return s.AuthToken != ""
}
