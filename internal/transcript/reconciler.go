package transcript

import (
	"reflect"

	"agentdeck/internal/events"
	"agentdeck/internal/types"
)

// Apply merges one update into t and returns the result. It is pure and
// idempotent for repeated delivery of the same update. Updates that do not
// concern the conversation leave t unchanged.
func Apply(t Transcript, update events.Update) Transcript {
	switch u := update.(type) {
	case events.MessageUpdated:
		return upsertMessage(t, u.Info)
	case events.PartUpdated:
		return upsertPart(t, u.Part, u.RoleHint)
	case events.MessageRemoved:
		return removeMessage(t, u.MessageID)
	case events.PartRemoved:
		return removePart(t, u.PartID)
	default:
		return t
	}
}

// ApplyAll folds updates into t in order.
func ApplyAll(t Transcript, updates ...events.Update) Transcript {
	for _, update := range updates {
		t = Apply(t, update)
	}
	return t
}

func upsertMessage(t Transcript, info types.Message) Transcript {
	if info.ID == "" {
		return t
	}
	idx := t.index(info.ID)
	if idx < 0 {
		info.Parts = nil
		if info.Role == "" {
			info.Role = types.RoleAgent
		}
		next := t.cloneMessages()
		next = append(next, info)
		return Transcript{messages: next}
	}
	next := t.cloneMessages()
	existing := next[idx]
	// zero values mean "not reported"; keep what an earlier update set
	if info.Role != "" {
		existing.Role = info.Role
	}
	if !info.CreatedAt.IsZero() {
		existing.CreatedAt = info.CreatedAt
	}
	if info.ModelRef != nil {
		ref := *info.ModelRef
		existing.ModelRef = &ref
	}
	if info.TokenUsage != nil {
		usage := *info.TokenUsage
		existing.TokenUsage = &usage
	}
	next[idx] = existing
	return Transcript{messages: next}
}

func upsertPart(t Transcript, part types.Part, roleHint types.Role) Transcript {
	if part.MessageID == "" {
		return t
	}
	next := t.cloneMessages()
	idx := t.index(part.MessageID)
	if idx < 0 {
		role := roleHint
		if role == "" {
			role = types.RoleAgent
		}
		next = append(next, types.Message{ID: part.MessageID, Role: role})
		idx = len(next) - 1
	}
	msg := next[idx]
	parts := append([]types.Part(nil), msg.Parts...)
	replaced := false
	if part.ID != "" {
		for i := range parts {
			if parts[i].ID == part.ID {
				parts[i] = part
				replaced = true
				break
			}
		}
	}
	if !replaced {
		if part.ID == "" && len(parts) > 0 && samePart(parts[len(parts)-1], part) {
			// redelivery of an id-less part
			return t
		}
		parts = append(parts, part)
	}
	msg.Parts = parts
	next[idx] = msg
	return Transcript{messages: next}
}

func samePart(a, b types.Part) bool {
	if a.ID != b.ID || a.Kind != b.Kind || a.Text != b.Text {
		return false
	}
	if a.Tool == nil || b.Tool == nil {
		return a.Tool == b.Tool
	}
	return reflect.DeepEqual(*a.Tool, *b.Tool)
}

func removeMessage(t Transcript, id string) Transcript {
	idx := t.index(id)
	if idx < 0 {
		return t
	}
	next := make([]types.Message, 0, len(t.messages)-1)
	next = append(next, t.messages[:idx]...)
	next = append(next, t.messages[idx+1:]...)
	return Transcript{messages: next}
}

func removePart(t Transcript, partID string) Transcript {
	if partID == "" {
		return t
	}
	var next []types.Message
	for i, msg := range t.messages {
		keep := make([]types.Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			if part.ID != partID {
				keep = append(keep, part)
			}
		}
		if len(keep) == len(msg.Parts) {
			continue
		}
		if next == nil {
			next = t.cloneMessages()
		}
		if len(keep) == 0 {
			keep = nil
		}
		msg.Parts = keep
		next[i] = msg
	}
	if next == nil {
		return t
	}
	return Transcript{messages: next}
}
