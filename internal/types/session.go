package types

import "time"

type SessionStatus string

const (
	SessionStatusStarting SessionStatus = "starting"
	SessionStatusRunning  SessionStatus = "running"
	SessionStatusError    SessionStatus = "error"
	SessionStatusStopped  SessionStatus = "stopped"
)

type Session struct {
	ID        string        `json:"id"`
	Status    SessionStatus `json:"status"`
	Title     string        `json:"title,omitempty"`
	Agent     string        `json:"agent,omitempty"`
	Directory string        `json:"directory,omitempty"`
	Port      int           `json:"port,omitempty"`
	CreatedAt time.Time     `json:"createdAt,omitzero"`
}

func NormalizeSessionStatus(raw string) (SessionStatus, bool) {
	switch raw {
	case "starting", "pending", "booting":
		return SessionStatusStarting, true
	case "running", "idle", "busy":
		return SessionStatusRunning, true
	case "error", "failed":
		return SessionStatusError, true
	case "stopped", "exited", "killed":
		return SessionStatusStopped, true
	default:
		return "", false
	}
}

func (s SessionStatus) Transitional() bool {
	return s == SessionStatusStarting
}
