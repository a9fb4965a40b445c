// Package transcript reconciles typed stream updates into an ordered,
// immutable view of a conversation.
package transcript

import "agentdeck/internal/types"

// Transcript is an ordered sequence of messages keyed by id. Values are
// never mutated after construction; Apply returns a new Transcript.
type Transcript struct {
	messages []types.Message
}

func New(messages ...types.Message) Transcript {
	var t Transcript
	for _, msg := range messages {
		if msg.ID == "" || t.index(msg.ID) >= 0 {
			continue
		}
		msg.Parts = append([]types.Part(nil), msg.Parts...)
		t.messages = append(t.messages, msg)
	}
	return t
}

func (t Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the messages in display order.
func (t Transcript) Messages() []types.Message {
	if len(t.messages) == 0 {
		return nil
	}
	out := make([]types.Message, len(t.messages))
	for i, msg := range t.messages {
		msg.Parts = append([]types.Part(nil), msg.Parts...)
		out[i] = msg
	}
	return out
}

func (t Transcript) Message(id string) (types.Message, bool) {
	idx := t.index(id)
	if idx < 0 {
		return types.Message{}, false
	}
	msg := t.messages[idx]
	msg.Parts = append([]types.Part(nil), msg.Parts...)
	return msg, true
}

func (t Transcript) index(id string) int {
	for i := range t.messages {
		if t.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (t Transcript) cloneMessages() []types.Message {
	return append([]types.Message(nil), t.messages...)
}
