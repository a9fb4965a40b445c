package events

import (
	"testing"
	"time"

	"agentdeck/internal/types"
)

func TestParseLineIgnoresUnframedLines(t *testing.T) {
	for _, line := range []string{
		"",
		": keep-alive",
		"event: message",
		"id: 42",
		`{"type":"log","line":"no prefix"}`,
		"data:",
		"data:    ",
	} {
		if update, ok := ParseLine(line); ok {
			t.Fatalf("expected %q to be skipped, got %#v", line, update)
		}
	}
}

func TestParseLineSkipsMalformedPayload(t *testing.T) {
	for _, line := range []string{
		"data: {not json",
		"data: hello",
		`data: ["type","log"]`,
		`data: {"type":"log"`,
	} {
		if update, ok := ParseLine(line); ok {
			t.Fatalf("expected %q to be skipped, got %#v", line, update)
		}
	}
}

func TestParseLineIgnoresUnknownTypes(t *testing.T) {
	if update, ok := ParseLine(`data: {"type":"session.compacted","properties":{"sessionID":"s1"}}`); ok {
		t.Fatalf("expected unknown type to be ignored, got %#v", update)
	}
	if update, ok := ParseLine(`data: {"message":"no type and no ok"}`); ok {
		t.Fatalf("expected untyped payload without ok to be ignored, got %#v", update)
	}
}

func TestParseLineDoneSentinel(t *testing.T) {
	update, ok := ParseLine("data: [DONE]")
	if !ok {
		t.Fatalf("expected sentinel to parse")
	}
	if update.Kind() != KindEnd {
		t.Fatalf("expected end update, got %s", update.Kind())
	}
}

func TestParseMessageUpdatedTopLevelInfo(t *testing.T) {
	update, ok := ParseLine(`data: {"type":"message.updated","info":{"id":"m1","role":"agent"}}`)
	if !ok {
		t.Fatalf("expected message update")
	}
	msg, isMsg := update.(MessageUpdated)
	if !isMsg {
		t.Fatalf("unexpected update type %T", update)
	}
	if msg.Info.ID != "m1" || msg.Info.Role != types.RoleAgent {
		t.Fatalf("unexpected info: %#v", msg.Info)
	}
	if len(msg.Info.Parts) != 0 {
		t.Fatalf("expected no parts on metadata update")
	}
}

func TestParseMessageUpdatedPropertiesEnvelope(t *testing.T) {
	line := `data: {"type":"message.updated","properties":{"info":{"id":"m2","role":"assistant","sessionID":"s1",` +
		`"time":{"created":1735689600000},"providerID":"anthropic","modelID":"claude","tokens":{"input":12,"output":34}}}}`
	update, ok := ParseLine(line)
	if !ok {
		t.Fatalf("expected message update")
	}
	msg := update.(MessageUpdated)
	if msg.Info.Role != types.RoleAgent {
		t.Fatalf("expected assistant to map to agent, got %q", msg.Info.Role)
	}
	want := time.UnixMilli(1735689600000).UTC()
	if !msg.Info.CreatedAt.Equal(want) {
		t.Fatalf("unexpected createdAt: %v", msg.Info.CreatedAt)
	}
	if msg.Info.ModelRef == nil || msg.Info.ModelRef.ProviderID != "anthropic" || msg.Info.ModelRef.ModelID != "claude" {
		t.Fatalf("unexpected model ref: %#v", msg.Info.ModelRef)
	}
	if msg.Info.TokenUsage == nil || msg.Info.TokenUsage.Input != 12 || msg.Info.TokenUsage.Output != 34 {
		t.Fatalf("unexpected token usage: %#v", msg.Info.TokenUsage)
	}
}

func TestParseMessageUpdatedLeavesMissingRoleEmpty(t *testing.T) {
	update, ok := ParseLine(`data: {"type":"message.updated","info":{"id":"m3","tokens":{"input":1,"output":2}}}`)
	if !ok {
		t.Fatalf("expected message update")
	}
	if role := update.(MessageUpdated).Info.Role; role != "" {
		t.Fatalf("expected unreported role to stay empty, got %q", role)
	}
}

func TestParseMessageUpdatedRequiresID(t *testing.T) {
	if _, ok := ParseLine(`data: {"type":"message.updated","info":{"role":"user"}}`); ok {
		t.Fatalf("expected message without id to be ignored")
	}
}

func TestParsePartUpdatedText(t *testing.T) {
	update, ok := ParseLine(`data: {"type":"message.part.updated","part":{"id":"p1","messageID":"m1","kind":"text","text":"Hi"}}`)
	if !ok {
		t.Fatalf("expected part update")
	}
	part := update.(PartUpdated).Part
	if part.ID != "p1" || part.MessageID != "m1" || part.Kind != types.PartKindText || part.Text != "Hi" {
		t.Fatalf("unexpected part: %#v", part)
	}
}

func TestParsePartUpdatedThinkingMapsToReasoning(t *testing.T) {
	update, ok := ParseLine(`data: {"type":"message.part.updated","properties":{"part":{"id":"r1","messageID":"m1","type":"thinking","text":"hmm"}}}`)
	if !ok {
		t.Fatalf("expected part update")
	}
	if kind := update.(PartUpdated).Part.Kind; kind != types.PartKindReasoning {
		t.Fatalf("expected reasoning kind, got %q", kind)
	}
}

func TestParsePartUpdatedToolState(t *testing.T) {
	line := `data: {"type":"message.part.updated","properties":{"part":{"id":"t1","messageID":"m1","type":"tool","tool":"bash",` +
		`"state":{"status":"completed","input":{"command":"ls"},"output":"a\nb"}}}}`
	update, ok := ParseLine(line)
	if !ok {
		t.Fatalf("expected part update")
	}
	part := update.(PartUpdated).Part
	if part.Kind != types.PartKindToolCall || part.Tool == nil {
		t.Fatalf("expected tool call part, got %#v", part)
	}
	if part.Tool.Name != "bash" || part.Tool.Status != types.ToolStatusCompleted {
		t.Fatalf("unexpected tool call: %#v", part.Tool)
	}
	if part.Tool.Input["command"] != "ls" || part.Tool.Output != "a\nb" {
		t.Fatalf("unexpected tool io: %#v", part.Tool)
	}
}

func TestParsePartUpdatedIgnoresStepParts(t *testing.T) {
	if _, ok := ParseLine(`data: {"type":"message.part.updated","part":{"id":"s1","messageID":"m1","type":"step-start"}}`); ok {
		t.Fatalf("expected step-start part to be ignored")
	}
}

func TestParsePartUpdatedRequiresMessageID(t *testing.T) {
	if _, ok := ParseLine(`data: {"type":"message.part.updated","part":{"id":"p1","kind":"text","text":"x"}}`); ok {
		t.Fatalf("expected part without message id to be ignored")
	}
}

func TestParseRemovals(t *testing.T) {
	update, ok := ParseLine(`data: {"type":"message.removed","properties":{"sessionID":"s1","messageID":"m1"}}`)
	if !ok || update.(MessageRemoved).MessageID != "m1" {
		t.Fatalf("unexpected message removal: %#v ok=%v", update, ok)
	}
	update, ok = ParseLine(`data: {"type":"message.part.removed","properties":{"sessionID":"s1","messageID":"m1","partID":"p1"}}`)
	if !ok {
		t.Fatalf("expected part removal")
	}
	removed := update.(PartRemoved)
	if removed.MessageID != "m1" || removed.PartID != "p1" {
		t.Fatalf("unexpected part removal: %#v", removed)
	}
}

func TestParseStatusChanged(t *testing.T) {
	update, ok := ParseLine(`data: {"type":"session.status","properties":{"sessionID":"s1","status":"running"}}`)
	if !ok {
		t.Fatalf("expected status update")
	}
	status := update.(StatusChanged)
	if status.SessionID != "s1" || status.Status != types.SessionStatusRunning {
		t.Fatalf("unexpected status: %#v", status)
	}
	update, ok = ParseLine(`data: {"type":"session.status","properties":{"sessionID":"s1","status":{"type":"busy"}}}`)
	if !ok || update.(StatusChanged).Status != types.SessionStatusRunning {
		t.Fatalf("expected nested busy status to map to running, got %#v ok=%v", update, ok)
	}
	if _, ok := ParseLine(`data: {"type":"session.status","properties":{"sessionID":"s1","status":"weird"}}`); ok {
		t.Fatalf("expected unknown status to be ignored")
	}
}

func TestParseLogLine(t *testing.T) {
	update, ok := ParseLine(`data: {"type":"log","line":"building...\n","index":7}`)
	if !ok {
		t.Fatalf("expected log line")
	}
	line := update.(LogLine)
	if line.Text != "building..." || !line.HasIndex || line.Index != 7 {
		t.Fatalf("unexpected log line: %#v", line)
	}
	update, ok = ParseLine(`data: {"type":"log","message":""}`)
	if !ok || update.(LogLine).Text != "" || update.(LogLine).HasIndex {
		t.Fatalf("expected empty log line without index, got %#v ok=%v", update, ok)
	}
}

func TestParseTerminalResult(t *testing.T) {
	update, ok := ParseLine(`data: {"ok":true,"message":"done","url":"https://example.test"}`)
	if !ok {
		t.Fatalf("expected result")
	}
	result := update.(Result).Result
	if !result.OK || result.Message != "done" {
		t.Fatalf("unexpected result: %#v", result)
	}
	if result.Extra["url"] != "https://example.test" {
		t.Fatalf("expected extra fields to be kept, got %#v", result.Extra)
	}
	update, ok = ParseLine(`data: {"type":"result","ok":false,"message":"port in use"}`)
	if !ok {
		t.Fatalf("expected typed result")
	}
	if result := update.(Result).Result; result.OK || result.Message != "port in use" || result.Extra != nil {
		t.Fatalf("unexpected typed result: %#v", result)
	}
}

func TestParseErrorIsFailureResult(t *testing.T) {
	update, ok := ParseLine(`data: {"type":"error","message":"worker crashed"}`)
	if !ok {
		t.Fatalf("expected error result")
	}
	result := update.(Result).Result
	if result.OK || result.Message != "worker crashed" {
		t.Fatalf("unexpected error result: %#v", result)
	}
	update, ok = ParseLine(`data: {"type":"error","properties":{"error":{"name":"APIError","message":"rate limited"}}}`)
	if !ok || update.(Result).Result.Message != "rate limited" {
		t.Fatalf("unexpected nested error: %#v ok=%v", update, ok)
	}
}

func TestParseConnected(t *testing.T) {
	update, ok := ParseLine(`data: {"type":"connected"}`)
	if !ok || update.Kind() != KindConnected {
		t.Fatalf("expected connected, got %#v ok=%v", update, ok)
	}
}

func TestParsePayloadAcceptsUnframedJSON(t *testing.T) {
	update, ok := ParsePayload([]byte(`  {"type":"log","text":"ws line"}  `))
	if !ok || update.(LogLine).Text != "ws line" {
		t.Fatalf("unexpected payload parse: %#v ok=%v", update, ok)
	}
}
