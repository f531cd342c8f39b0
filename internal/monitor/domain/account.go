package domain

import "time"

// WatchedAccount is one roster entry from the watchlist config. Read-only to
// the monitoring core.
type WatchedAccount struct {
	AccountID    string
	DisplayLabel string
	PollInterval time.Duration
	VolumeHint   *float64 // opaque pass-through for the dashboard
}

// MinPollInterval is the fallback for per-account polling when the config
// leaves the interval unset or non-positive. A configured positive interval
// is honored as-is.
const MinPollInterval = time.Minute

// EffectivePollInterval returns the configured interval, falling back to
// MinPollInterval when it is unset or non-positive.
func (a WatchedAccount) EffectivePollInterval() time.Duration {
	if a.PollInterval <= 0 {
		return MinPollInterval
	}
	return a.PollInterval
}

// Profile is the subset of the upstream user record the monitor cares about.
// State and Status are the two coarse fields change detection keys on.
type Profile struct {
	ID                string     `json:"id"`
	Username          string     `json:"username,omitempty"`
	DisplayName       string     `json:"displayName"`
	State             string     `json:"state"`
	Status            string     `json:"status"`
	StatusDescription string     `json:"statusDescription,omitempty"`
	Location          string     `json:"location,omitempty"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	Bio               string     `json:"bio,omitempty"`
}

// CoarseState returns the state field with unknown substituted for empty,
// mirroring the upstream API's habit of omitting it.
func (p *Profile) CoarseState() string {
	if p == nil || p.State == "" {
		return "unknown"
	}
	return p.State
}

// CoarseStatus returns the status field with unknown substituted for empty.
func (p *Profile) CoarseStatus() string {
	if p == nil || p.Status == "" {
		return "unknown"
	}
	return p.Status
}
