package domain

import "time"

// StatusKind classifies one observation of a watched account.
type StatusKind string

const (
	StatusOK    StatusKind = "ok"
	StatusError StatusKind = "error"

	// StatusOffline is a wire-level placeholder for accounts with no
	// observations yet. The state store itself only records ok and error.
	StatusOffline StatusKind = "offline"
)

// Snapshot is one observed state of a watched account at a point in time.
type Snapshot struct {
	Profile      *Profile   `json:"profile,omitempty"`
	StatusKind   StatusKind `json:"statusKind"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	ObservedAt   time.Time  `json:"observedAt"`
}

// SameProfileObservation reports whether other carries the same coarse
// profile observation: same presence and the same state/status strings. Used
// to decide between appending history and refreshing in place.
func (s Snapshot) SameProfileObservation(other Snapshot) bool {
	if (s.Profile == nil) != (other.Profile == nil) {
		return false
	}
	if s.Profile == nil {
		return true
	}
	return s.Profile.CoarseState() == other.Profile.CoarseState() &&
		s.Profile.CoarseStatus() == other.Profile.CoarseStatus()
}
