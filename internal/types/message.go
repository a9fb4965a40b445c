package types

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type PartKind string

const (
	PartKindText      PartKind = "text"
	PartKindReasoning PartKind = "reasoning"
	PartKindToolCall  PartKind = "toolCall"
)

type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
)

type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Message is one conversational turn. Parts are owned by the message and
// keep arrival order.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	CreatedAt  time.Time   `json:"createdAt,omitzero"`
	ModelRef   *ModelRef   `json:"modelRef,omitempty"`
	TokenUsage *TokenUsage `json:"tokenUsage,omitempty"`
	Parts      []Part      `json:"parts,omitempty"`
}

type ToolCall struct {
	Name   string         `json:"name"`
	Status ToolStatus     `json:"status"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Part is a fragment of a message's content. Text carries the content of
// text and reasoning parts; Tool is set only for tool calls.
type Part struct {
	ID        string    `json:"id,omitempty"`
	MessageID string    `json:"messageID"`
	Kind      PartKind  `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Tool      *ToolCall `json:"tool,omitempty"`
}

func NormalizeRole(raw string) (Role, bool) {
	switch raw {
	case "user", "human":
		return RoleUser, true
	case "agent", "assistant", "model":
		return RoleAgent, true
	default:
		return "", false
	}
}

func NormalizeToolStatus(raw string) ToolStatus {
	switch raw {
	case "running", "in_progress":
		return ToolStatusRunning
	case "completed", "done", "success":
		return ToolStatusCompleted
	case "error", "failed":
		return ToolStatusError
	default:
		return ToolStatusPending
	}
}
