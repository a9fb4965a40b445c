package app

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	glamouransi "github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	xansi "github.com/charmbracelet/x/ansi"
)

// Resizing the terminal walks through many widths; only the most recent
// few renderers are worth keeping.
const maxCachedRenderers = 4

type rendererCache struct {
	mu      sync.Mutex
	byWidth map[int]*glamour.TermRenderer
	order   []int
}

var markdownRenderers = &rendererCache{byWidth: map[int]*glamour.TermRenderer{}}

func renderMarkdown(input string, width int) string {
	input = strings.TrimRight(input, "\n")
	if input == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := markdownRenderers.get(width)
	if r == nil {
		return input
	}
	out, err := r.Render(input)
	if err != nil {
		return input
	}
	out = xansi.Hardwrap(strings.TrimRight(out, "\n"), width, true)
	return strings.TrimRight(out, "\n")
}

func (c *rendererCache) get(width int) *glamour.TermRenderer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.byWidth[width]; ok {
		return r
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(transcriptStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	if len(c.order) >= maxCachedRenderers {
		delete(c.byWidth, c.order[0])
		c.order = c.order[1:]
	}
	c.byWidth[width] = r
	c.order = append(c.order, width)
	return r
}

func (c *rendererCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byWidth)
}

// transcriptStyle is the dark glamour theme with the document frame removed;
// bubbles supply their own padding.
func transcriptStyle() glamouransi.StyleConfig {
	style := styles.DarkStyleConfig
	style.Document.StylePrimitive.BlockPrefix = ""
	style.Document.StylePrimitive.BlockSuffix = ""
	noMargin := uint(0)
	style.Document.Margin = &noMargin
	// agents quote tool output and file excerpts a lot
	dim, grey := true, "245"
	style.BlockQuote.StylePrimitive.Faint = &dim
	style.BlockQuote.StylePrimitive.Color = &grey
	return style
}

// codeFence returns a backtick fence longer than any backtick run in body,
// so tool output that itself contains fences stays inside one code block.
func codeFence(body string) string {
	longest, run := 0, 0
	for _, r := range body {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

// escapeMarkdown renders prompts literally: inline code markers and any
// line-leading block syntax are escaped, indentation is kept.
func escapeMarkdown(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(text, "`", "\\`"), "\n")
	for i, line := range lines {
		body := strings.TrimLeft(line, " \t")
		if startsBlock(body) {
			lines[i] = line[:len(line)-len(body)] + "\\" + body
		}
	}
	return strings.Join(lines, "\n")
}

func startsBlock(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case '#', '>', '|', '~':
		return true
	case '-', '*', '+', '=', '_':
		return len(line) == 1 || line[1] == ' ' || line[1] == line[0]
	}
	digits := len(line) - len(strings.TrimLeft(line, "0123456789"))
	if digits == 0 || digits+1 >= len(line) {
		return false
	}
	return (line[digits] == '.' || line[digits] == ')') && line[digits+1] == ' '
}
