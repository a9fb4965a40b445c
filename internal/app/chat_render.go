package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"agentdeck/internal/transcript"
	"agentdeck/internal/types"
)

type chatRole string

const (
	chatRoleUser      chatRole = "user"
	chatRoleAgent     chatRole = "agent"
	chatRoleReasoning chatRole = "reasoning"
	chatRoleTool      chatRole = "tool"
	chatRoleMeta      chatRole = "meta"
)

type chatBlock struct {
	ID        string
	Role      chatRole
	Text      string
	Failed    bool
	Collapsed bool
}

const (
	toolOutputPreviewLines = 8
	toolInputSummaryWidth  = 120
	collapsedHint          = "... (collapsed, press e to expand)"
)

func partKey(messageID string, index int, part types.Part) string {
	if part.ID != "" {
		return messageID + "/" + part.ID
	}
	return fmt.Sprintf("%s/#%d", messageID, index)
}

// chatBlocks flattens turns into renderable blocks. Collapsible parts stay
// collapsed unless their key is in expanded or expandAll is set.
func chatBlocks(turns []transcript.Turn, expanded map[string]bool, expandAll bool) []chatBlock {
	blocks := make([]chatBlock, 0, len(turns)*2)
	for _, turn := range turns {
		for _, msg := range turn.Messages {
			for i, part := range msg.Parts {
				key := partKey(msg.ID, i, part)
				block := chatBlock{ID: key}
				switch part.Kind {
				case types.PartKindReasoning:
					block.Role = chatRoleReasoning
					block.Text = part.Text
				case types.PartKindToolCall:
					block.Role = chatRoleTool
					block.Text = toolCallText(part.Tool)
					block.Failed = part.Tool != nil && part.Tool.Status == types.ToolStatusError
				default:
					block.Role = chatRoleAgent
					if msg.Role == types.RoleUser {
						block.Role = chatRoleUser
					}
					block.Text = part.Text
				}
				block.Collapsed = transcript.CollapsedByDefault(part) && !expandAll && !expanded[key]
				blocks = append(blocks, block)
			}
			if meta := messageMeta(msg); meta != "" {
				blocks = append(blocks, chatBlock{ID: msg.ID + "/meta", Role: chatRoleMeta, Text: meta})
			}
		}
	}
	return blocks
}

func renderChatBlocks(blocks []chatBlock, width int) string {
	if width <= 0 {
		width = 80
	}
	lines := make([]string, 0, len(blocks)*4)
	for _, block := range blocks {
		blockLines := renderChatBlock(block, width)
		if len(blockLines) == 0 {
			continue
		}
		lines = append(lines, blockLines...)
		if block.Role != chatRoleMeta {
			lines = append(lines, "")
		}
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func renderChatBlock(block chatBlock, width int) []string {
	text := strings.TrimSpace(block.Text)
	if text == "" {
		return nil
	}
	if block.Role == chatRoleMeta {
		return []string{chatMetaStyle.Render(runewidth.Truncate(text, width, "…"))}
	}
	maxBubbleWidth := width - 4
	if maxBubbleWidth < 10 {
		maxBubbleWidth = width
	}
	innerWidth := maxBubbleWidth - 2 - 2*chatBubblePaddingHorizontal
	if innerWidth < 1 {
		innerWidth = 1
	}
	if block.Collapsed {
		preview, truncated := transcript.Preview(text, transcript.DefaultPreviewLines, transcript.DefaultPreviewChars)
		if truncated {
			preview += "\n\n" + collapsedHint
		}
		text = preview
	}
	if block.Role == chatRoleUser {
		text = escapeMarkdown(text)
	}
	rendered := renderMarkdown(text, innerWidth)
	style := agentBubbleStyle
	align := lipgloss.Left
	switch block.Role {
	case chatRoleUser:
		style = userBubbleStyle
		align = lipgloss.Right
	case chatRoleReasoning:
		style = reasoningBubbleStyle
	case chatRoleTool:
		style = toolBubbleStyle
		if block.Failed {
			style = toolFailedStyle
		}
	}
	placed := lipgloss.PlaceHorizontal(width, align, style.Render(rendered))
	return strings.Split(placed, "\n")
}

func toolCallText(call *types.ToolCall) string {
	if call == nil {
		return ""
	}
	name := strings.TrimSpace(call.Name)
	if name == "" {
		name = "tool"
	}
	status := call.Status
	if status == "" {
		status = types.ToolStatusPending
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)", name, status)
	if summary := toolInputSummary(call.Input); summary != "" {
		b.WriteString("\n\n`")
		b.WriteString(strings.ReplaceAll(summary, "`", "'"))
		b.WriteString("`")
	}
	output := call.Output
	if call.Status == types.ToolStatusError && strings.TrimSpace(call.Error) != "" {
		output = call.Error
	}
	if preview, truncated := transcript.Preview(output, toolOutputPreviewLines, transcript.DefaultPreviewChars); preview != "" {
		if truncated {
			preview += "\n..."
		}
		fence := codeFence(preview)
		b.WriteString("\n\n" + fence + "\n")
		b.WriteString(preview)
		b.WriteString("\n" + fence)
	}
	return b.String()
}

func toolInputSummary(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}
	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := strings.Join(strings.Fields(fmt.Sprint(input[key])), " ")
		parts = append(parts, key+"="+value)
	}
	return runewidth.Truncate(strings.Join(parts, " "), toolInputSummaryWidth, "…")
}

func messageMeta(msg types.Message) string {
	if msg.Role != types.RoleAgent {
		return ""
	}
	var parts []string
	if msg.ModelRef != nil && msg.ModelRef.ModelID != "" {
		parts = append(parts, msg.ModelRef.ModelID)
	}
	if msg.TokenUsage != nil && (msg.TokenUsage.Input > 0 || msg.TokenUsage.Output > 0) {
		parts = append(parts, fmt.Sprintf("%d in / %d out", msg.TokenUsage.Input, msg.TokenUsage.Output))
	}
	if !msg.CreatedAt.IsZero() {
		parts = append(parts, msg.CreatedAt.Local().Format("15:04"))
	}
	return strings.Join(parts, " · ")
}

// transcriptPlainText renders the full conversation without styling, for
// copying and for the plain watch mode.
func transcriptPlainText(t transcript.Transcript) string {
	var b strings.Builder
	for _, msg := range t.Messages() {
		if len(msg.Parts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n", msg.Role)
		for _, part := range msg.Parts {
			switch part.Kind {
			case types.PartKindReasoning:
				fmt.Fprintf(&b, "(reasoning) %s\n", strings.TrimSpace(part.Text))
			case types.PartKindToolCall:
				if part.Tool == nil {
					continue
				}
				fmt.Fprintf(&b, "(tool %s %s)", part.Tool.Name, part.Tool.Status)
				if summary := toolInputSummary(part.Tool.Input); summary != "" {
					b.WriteString(" " + summary)
				}
				b.WriteString("\n")
				if out := strings.TrimSpace(part.Tool.Output); out != "" {
					b.WriteString(out + "\n")
				}
				if part.Tool.Error != "" {
					b.WriteString("error: " + part.Tool.Error + "\n")
				}
			default:
				b.WriteString(strings.TrimSpace(part.Text) + "\n")
			}
		}
	}
	return b.String()
}

// PlainText is the uncolored rendering used when no terminal UI is attached.
func PlainText(t transcript.Transcript) string {
	return transcriptPlainText(t)
}
