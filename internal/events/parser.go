package events

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"agentdeck/internal/types"
)

const (
	DataPrefix   = "data:"
	DoneSentinel = "[DONE]"
)

// ParseLine decodes one line of a push stream. Lines without the data
// prefix and payloads that are not well-formed JSON objects are skipped.
func ParseLine(line string) (Update, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, DataPrefix) {
		return nil, false
	}
	payload := strings.TrimSpace(line[len(DataPrefix):])
	if payload == "" {
		return nil, false
	}
	return ParsePayload([]byte(payload))
}

// ParsePayload decodes an unframed payload, as delivered by a websocket
// message or a joined SSE event.
func ParsePayload(payload []byte) (Update, bool) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, false
	}
	if string(payload) == DoneSentinel {
		return End{}, true
	}
	if payload[0] != '{' {
		return nil, false
	}
	var env struct {
		Type       string          `json:"type"`
		Properties json.RawMessage `json:"properties"`
		OK         *bool           `json:"ok"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, false
	}
	body := payload
	if props := bytes.TrimSpace(env.Properties); len(props) > 0 && props[0] == '{' {
		body = props
	}

	switch strings.ToLower(strings.TrimSpace(env.Type)) {
	case string(KindMessageUpdated):
		return parseMessageUpdated(body)
	case string(KindPartUpdated):
		return parsePartUpdated(body)
	case string(KindMessageRemoved):
		return parseMessageRemoved(body)
	case string(KindPartRemoved):
		return parsePartRemoved(body)
	case string(KindStatusChanged):
		return parseStatusChanged(body)
	case string(KindLog):
		return parseLogLine(body)
	case string(KindConnected), "server.connected":
		return Connected{}, true
	case "error":
		return parseError(body)
	case string(KindResult):
		return parseResult(body)
	case "":
		if env.OK != nil {
			return parseResult(payload)
		}
		return nil, false
	default:
		return nil, false
	}
}

type messageInfoWire struct {
	ID         string            `json:"id"`
	Role       string            `json:"role"`
	CreatedAt  json.RawMessage   `json:"createdAt"`
	Time       *timeWire         `json:"time"`
	ProviderID string            `json:"providerID"`
	ModelID    string            `json:"modelID"`
	Model      *types.ModelRef   `json:"model"`
	ModelRef   *types.ModelRef   `json:"modelRef"`
	Tokens     *types.TokenUsage `json:"tokens"`
	TokenUsage *types.TokenUsage `json:"tokenUsage"`
}

type timeWire struct {
	Created json.RawMessage `json:"created"`
}

func parseMessageUpdated(body []byte) (Update, bool) {
	var wrapper struct {
		Info *messageInfoWire `json:"info"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, false
	}
	info := wrapper.Info
	if info == nil {
		info = &messageInfoWire{}
		if err := json.Unmarshal(body, info); err != nil {
			return nil, false
		}
	}
	id := strings.TrimSpace(info.ID)
	if id == "" {
		return nil, false
	}
	// an absent or unknown role stays empty so the reconciler keeps the
	// role it already has
	role, _ := types.NormalizeRole(strings.ToLower(strings.TrimSpace(info.Role)))
	msg := types.Message{
		ID:         id,
		Role:       role,
		CreatedAt:  parseTimestamp(info.CreatedAt),
		ModelRef:   pickModelRef(info),
		TokenUsage: pickTokenUsage(info),
	}
	if msg.CreatedAt.IsZero() && info.Time != nil {
		msg.CreatedAt = parseTimestamp(info.Time.Created)
	}
	return MessageUpdated{Info: msg}, true
}

func pickModelRef(info *messageInfoWire) *types.ModelRef {
	for _, ref := range []*types.ModelRef{info.ModelRef, info.Model} {
		if ref != nil && (ref.ProviderID != "" || ref.ModelID != "") {
			out := *ref
			return &out
		}
	}
	if info.ProviderID != "" || info.ModelID != "" {
		return &types.ModelRef{ProviderID: info.ProviderID, ModelID: info.ModelID}
	}
	return nil
}

func pickTokenUsage(info *messageInfoWire) *types.TokenUsage {
	for _, usage := range []*types.TokenUsage{info.TokenUsage, info.Tokens} {
		if usage != nil {
			out := *usage
			return &out
		}
	}
	return nil
}

type partWire struct {
	ID        string          `json:"id"`
	MessageID string          `json:"messageID"`
	Kind      string          `json:"kind"`
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Role      string          `json:"role"`
	Tool      string          `json:"tool"`
	Name      string          `json:"name"`
	State     *toolStateWire  `json:"state"`
	Status    string          `json:"status"`
	Input     map[string]any  `json:"input"`
	Output    json.RawMessage `json:"output"`
	Error     json.RawMessage `json:"error"`
}

type toolStateWire struct {
	Status string          `json:"status"`
	Input  map[string]any  `json:"input"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

func parsePartUpdated(body []byte) (Update, bool) {
	var wrapper struct {
		Part *partWire `json:"part"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, false
	}
	wire := wrapper.Part
	if wire == nil {
		wire = &partWire{}
		if err := json.Unmarshal(body, wire); err != nil {
			return nil, false
		}
	}
	messageID := strings.TrimSpace(wire.MessageID)
	if messageID == "" {
		return nil, false
	}
	kindName := wire.Kind
	if strings.TrimSpace(kindName) == "" {
		kindName = wire.Type
	}
	kind, ok := normalizePartKind(kindName)
	if !ok {
		return nil, false
	}
	part := types.Part{
		ID:        strings.TrimSpace(wire.ID),
		MessageID: messageID,
		Kind:      kind,
		Text:      wire.Text,
	}
	if kind == types.PartKindToolCall {
		part.Text = ""
		part.Tool = toolCallFromWire(wire)
	}
	update := PartUpdated{Part: part}
	if role, ok := types.NormalizeRole(strings.ToLower(strings.TrimSpace(wire.Role))); ok {
		update.RoleHint = role
	}
	return update, true
}

func normalizePartKind(raw string) (types.PartKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text":
		return types.PartKindText, true
	case "reasoning", "thinking":
		return types.PartKindReasoning, true
	case "tool", "toolcall", "tool-call", "tool_call":
		return types.PartKindToolCall, true
	default:
		return "", false
	}
}

func toolCallFromWire(wire *partWire) *types.ToolCall {
	name := strings.TrimSpace(wire.Tool)
	if name == "" {
		name = strings.TrimSpace(wire.Name)
	}
	call := &types.ToolCall{
		Name:   name,
		Status: types.NormalizeToolStatus(strings.ToLower(strings.TrimSpace(wire.Status))),
		Input:  wire.Input,
		Output: rawText(wire.Output),
		Error:  rawText(wire.Error),
	}
	if state := wire.State; state != nil {
		if status := strings.TrimSpace(state.Status); status != "" {
			call.Status = types.NormalizeToolStatus(strings.ToLower(status))
		}
		if state.Input != nil {
			call.Input = state.Input
		}
		if out := rawText(state.Output); out != "" {
			call.Output = out
		}
		if errText := rawText(state.Error); errText != "" {
			call.Error = errText
		}
	}
	return call
}

func parseMessageRemoved(body []byte) (Update, bool) {
	var wire struct {
		MessageID string `json:"messageID"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, false
	}
	id := strings.TrimSpace(wire.MessageID)
	if id == "" {
		id = strings.TrimSpace(wire.ID)
	}
	if id == "" {
		return nil, false
	}
	return MessageRemoved{MessageID: id}, true
}

func parsePartRemoved(body []byte) (Update, bool) {
	var wire struct {
		MessageID string `json:"messageID"`
		PartID    string `json:"partID"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, false
	}
	partID := strings.TrimSpace(wire.PartID)
	if partID == "" {
		partID = strings.TrimSpace(wire.ID)
	}
	if partID == "" {
		return nil, false
	}
	return PartRemoved{MessageID: strings.TrimSpace(wire.MessageID), PartID: partID}, true
}

func parseStatusChanged(body []byte) (Update, bool) {
	var wire struct {
		SessionID string          `json:"sessionID"`
		ID        string          `json:"id"`
		Status    json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, false
	}
	sessionID := strings.TrimSpace(wire.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(wire.ID)
	}
	if sessionID == "" {
		return nil, false
	}
	raw := rawText(wire.Status)
	if raw == "" || strings.HasPrefix(raw, "{") {
		var nested struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(wire.Status, &nested); err == nil {
			raw = nested.Type
		}
	}
	status, ok := types.NormalizeSessionStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		return nil, false
	}
	return StatusChanged{SessionID: sessionID, Status: status}, true
}

func parseLogLine(body []byte) (Update, bool) {
	var wire struct {
		Line    *string `json:"line"`
		Text    *string `json:"text"`
		Message *string `json:"message"`
		Chunk   *string `json:"chunk"`
		Index   *int    `json:"index"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, false
	}
	var text *string
	for _, candidate := range []*string{wire.Line, wire.Text, wire.Message, wire.Chunk} {
		if candidate != nil {
			text = candidate
			break
		}
	}
	if text == nil {
		return nil, false
	}
	line := LogLine{Text: strings.TrimRight(*text, "\r\n")}
	if wire.Index != nil && *wire.Index >= 0 {
		line.Index = *wire.Index
		line.HasIndex = true
	}
	return line, true
}

func parseError(body []byte) (Update, bool) {
	var wire struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, false
	}
	msg := strings.TrimSpace(wire.Message)
	if msg == "" {
		msg = rawText(wire.Error)
		if strings.HasPrefix(msg, "{") {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(wire.Error, &nested); err == nil {
				msg = strings.TrimSpace(nested.Message)
			}
		}
	}
	if msg == "" {
		msg = "unknown error"
	}
	return Result{Result: types.Result{OK: false, Message: msg}}, true
}

func parseResult(body []byte) (Update, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, false
	}
	var ok bool
	rawOK, present := fields["ok"]
	if !present {
		return nil, false
	}
	if err := json.Unmarshal(rawOK, &ok); err != nil {
		return nil, false
	}
	result := types.Result{OK: ok, Message: rawText(fields["message"])}
	for key, raw := range fields {
		switch key {
		case "ok", "message", "type":
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		if result.Extra == nil {
			result.Extra = map[string]any{}
		}
		result.Extra[key] = value
	}
	return Result{Result: result}, true
}

// rawText returns a JSON string value unquoted, or the compact JSON text of
// any other value.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func parseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}
		}
		s = strings.TrimSpace(s)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC()
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return epochTime(n)
		}
		return time.Time{}
	}
	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}
	}
	return epochTime(n)
}

// epochTime accepts seconds or milliseconds since the epoch.
func epochTime(n float64) time.Time {
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}
	}
	if n >= 1e11 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return time.Unix(int64(n), 0).UTC()
}
