package transcript

import (
	"strings"

	"agentdeck/internal/types"
)

// Turn is a display grouping of consecutive messages with the same role.
// It is derived from a Transcript and owns no state.
type Turn struct {
	Role     types.Role
	Messages []types.Message
}

func Turns(t Transcript) []Turn {
	var turns []Turn
	for _, msg := range t.Messages() {
		if n := len(turns); n > 0 && turns[n-1].Role == msg.Role {
			turns[n-1].Messages = append(turns[n-1].Messages, msg)
			continue
		}
		turns = append(turns, Turn{Role: msg.Role, Messages: []types.Message{msg}})
	}
	return turns
}

const (
	DefaultPreviewLines = 3
	DefaultPreviewChars = 280
)

// CollapsedByDefault reports whether a part renders collapsed until the
// user expands it.
func CollapsedByDefault(part types.Part) bool {
	return part.Kind == types.PartKindReasoning
}

// Preview truncates text to maxLines lines and maxChars bytes. A limit of
// zero or less disables that bound.
func Preview(text string, maxLines, maxChars int) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	lines := strings.Split(text, "\n")
	truncated := false
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	preview := strings.Join(lines, "\n")
	if maxChars > 0 && len(preview) > maxChars {
		cut := maxChars
		for cut > 0 && !isRuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
		truncated = true
	}
	return strings.TrimSpace(preview), truncated
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
