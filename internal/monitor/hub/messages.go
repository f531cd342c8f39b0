package hub

import (
	"time"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
)

// Server to client message types. Every frame is a JSON envelope of
// {"type": ..., "payload": ...}.
const (
	typeSessionStatus   = "sessionStatus"
	typeInitialSnapshot = "initialSnapshot"
	typeAccountUpdate   = "accountUpdate"
	typeSystemNotice    = "systemNotice"
	typeLogEntry        = "logEntry"
)

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// accountEntry is one account's status as rendered on the dashboard. A nil
// ObservedAt means the account has not been polled yet. History is only
// populated inside initialSnapshot payloads.
type accountEntry struct {
	AccountID    string            `json:"accountId"`
	Label        string            `json:"label"`
	Profile      *domain.Profile   `json:"profile,omitempty"`
	StatusKind   domain.StatusKind `json:"statusKind"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	ObservedAt   *time.Time        `json:"observedAt,omitempty"`
	VolumeHint   *float64          `json:"volumeHint,omitempty"`
	History      []domain.Snapshot `json:"history,omitempty"`
}

type snapshotPayload struct {
	ServerStartTime time.Time      `json:"serverStartTime"`
	Accounts        []accountEntry `json:"accounts"`
}

type noticePayload struct {
	Message string `json:"message"`
}

type logPayload struct {
	Kind    string    `json:"kind"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// clientCommand is the JSON form of a client-to-server command. The plain
// text "refresh" is also accepted for snapshot resends.
type clientCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}
