package vrchat

import (
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
)

// OutcomeCode is the closed set of login/verification results. Stable string
// values double as the wire codes returned to the dashboard.
type OutcomeCode string

const (
	OutcomeSuccess                        OutcomeCode = "success"
	OutcomeSecondFactorRequired           OutcomeCode = "second_factor_required"
	OutcomeInvalidCredentials             OutcomeCode = "invalid_credentials"
	OutcomeInvalidSecondFactorCode        OutcomeCode = "invalid_second_factor_code"
	OutcomeSecondFactorVerificationFailed OutcomeCode = "second_factor_verification_failed"
	// OutcomeMissingSessionToken means the upstream reported success but the
	// session cookie was absent. A protocol violation, treated as fatal.
	OutcomeMissingSessionToken         OutcomeCode = "missing_session_token"
	OutcomeUnsupportedSecondFactorKind OutcomeCode = "unsupported_second_factor_kind"
	OutcomeNetworkError                OutcomeCode = "network_error"
)

// LoginOutcome is the result of Login or VerifySecondFactor. Session is only
// meaningful for OutcomeSuccess (a complete session) and
// OutcomeSecondFactorRequired (the interim token needed for verification).
type LoginOutcome struct {
	Code             OutcomeCode
	SecondFactorKind domain.SecondFactorKind
	Session          domain.Session
}

// identityPayload is the upstream response to GET /auth/user. When the
// account still needs a second factor, only RequiresTwoFactorAuth is
// populated; otherwise it is the caller's own user record.
type identityPayload struct {
	ID                    string   `json:"id"`
	Username              string   `json:"username"`
	DisplayName           string   `json:"displayName"`
	State                 string   `json:"state"`
	Status                string   `json:"status"`
	StatusDescription     string   `json:"statusDescription"`
	RequiresTwoFactorAuth []string `json:"requiresTwoFactorAuth"`
}
