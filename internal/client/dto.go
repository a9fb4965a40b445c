package client

import (
	"strings"
	"time"

	"agentdeck/internal/types"
)

type sessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type sessionDTO struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Title     string    `json:"title,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Directory string    `json:"directory,omitempty"`
	Port      int       `json:"port,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

func (s sessionDTO) toSession() types.Session {
	status, _ := types.NormalizeSessionStatus(strings.ToLower(strings.TrimSpace(s.Status)))
	return types.Session{
		ID:        strings.TrimSpace(s.ID),
		Status:    status,
		Title:     s.Title,
		Agent:     s.Agent,
		Directory: s.Directory,
		Port:      s.Port,
		CreatedAt: s.CreatedAt,
	}
}

const (
	ActionDomainMapping = "domain-mapping"
	ActionCommitMessage = "commit-message"
	ActionWebServer     = "web-server"
)

func Actions() []string {
	return []string{ActionDomainMapping, ActionCommitMessage, ActionWebServer}
}

func IsAction(name string) bool {
	for _, action := range Actions() {
		if action == name {
			return true
		}
	}
	return false
}

type ActionRequest struct {
	SessionID string         `json:"sessionId,omitempty"`
	Directory string         `json:"directory,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}
