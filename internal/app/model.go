package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"agentdeck/internal/logging"
	"agentdeck/internal/transcript"
	"agentdeck/internal/types"
)

const (
	minViewportWidth  = 20
	minContentHeight  = 4
	chromeHeight      = 2
	helpText          = "q quit  e expand  y copy  g/G top/bottom  f follow"
	emptyTranscript   = "Waiting for messages..."
	streamEndedStatus = "stream ended"
)

type TranscriptSource interface {
	Snapshot() transcript.Transcript
	Subscribe() (<-chan transcript.Transcript, func())
}

type StatusSource interface {
	Subscribe(id string) (<-chan types.SessionStatus, func())
}

type transcriptMsg struct {
	transcript transcript.Transcript
}

type transcriptClosedMsg struct{}

type statusMsg struct {
	status types.SessionStatus
}

type statusClosedMsg struct{}

type copyResultMsg struct {
	method clipboardMethod
	err    error
}

// StreamEndedMsg tells the viewer that the event stream feeding it stopped.
type StreamEndedMsg struct {
	Err error
}

type Model struct {
	sessionID string
	logger    logging.Logger

	viewport viewport.Model
	loader   spinner.Model
	spinning bool

	transcripts  <-chan transcript.Transcript
	statuses     <-chan types.SessionStatus
	unsubscribes []func()

	current   transcript.Transcript
	status    types.SessionStatus
	expandAll bool
	follow    bool
	width     int
	height    int

	toast      string
	toastError bool
	streamErr  error
	ended      bool
}

func NewModel(opts Options) *Model {
	vp := viewport.New(minViewportWidth, minContentHeight)
	vp.SetContent(emptyTranscript)
	loader := spinner.New()
	loader.Spinner = spinner.Line
	loader.Style = lipgloss.NewStyle()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	m := &Model{
		sessionID: opts.SessionID,
		logger:    logger.With(logging.F("session_id", opts.SessionID)),
		viewport:  vp,
		loader:    loader,
		follow:    true,
	}
	if opts.Transcript != nil {
		m.current = opts.Transcript.Snapshot()
		ch, cancel := opts.Transcript.Subscribe()
		m.transcripts = ch
		m.unsubscribes = append(m.unsubscribes, cancel)
	}
	if opts.Status != nil && opts.SessionID != "" {
		ch, cancel := opts.Status.Subscribe(opts.SessionID)
		m.statuses = ch
		m.unsubscribes = append(m.unsubscribes, cancel)
	}
	m.refreshContent()
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForTranscript(m.transcripts), waitForStatus(m.statuses))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case transcriptMsg:
		m.current = msg.transcript
		m.refreshContent()
		return m, waitForTranscript(m.transcripts)
	case transcriptClosedMsg:
		m.transcripts = nil
		return m, nil
	case statusMsg:
		return m, m.setStatus(msg.status)
	case statusClosedMsg:
		m.statuses = nil
		return m, nil
	case StreamEndedMsg:
		m.ended = true
		m.streamErr = msg.Err
		if msg.Err != nil {
			m.logger.Warn("viewer_stream_ended", logging.F("error", msg.Err))
			m.setToast("stream error: "+msg.Err.Error(), true)
		} else {
			m.setToast(streamEndedStatus, false)
		}
		return m, nil
	case copyResultMsg:
		if msg.err != nil {
			m.setToast("copy failed: "+humanizeClipboardError(msg.err), true)
		} else {
			m.setToast("copied transcript ("+msg.method.String()+")", false)
		}
		return m, nil
	case spinner.TickMsg:
		if !m.spinning {
			return m, nil
		}
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.Close()
		return m, tea.Quit
	case "e":
		m.expandAll = !m.expandAll
		m.refreshContent()
		return m, nil
	case "y":
		return m, copyTranscriptCmd(transcriptPlainText(m.current))
	case "g", "home":
		m.follow = false
		m.viewport.GotoTop()
		return m, nil
	case "G", "end":
		m.follow = true
		m.viewport.GotoBottom()
		return m, nil
	case "f":
		m.follow = !m.follow
		if m.follow {
			m.viewport.GotoBottom()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.follow = m.viewport.AtBottom()
	return m, cmd
}

func (m *Model) View() string {
	if m.width <= 0 {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.headerLine(), m.viewport.View(), m.statusLine())
}

// Close releases the transcript and status subscriptions. It is safe to call
// more than once.
func (m *Model) Close() {
	for _, cancel := range m.unsubscribes {
		cancel()
	}
	m.unsubscribes = nil
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(minViewportWidth, width)
	m.viewport.Height = max(minContentHeight, height-chromeHeight)
	m.refreshContent()
}

func (m *Model) refreshContent() {
	content := emptyTranscript
	if m.current.Len() > 0 {
		blocks := chatBlocks(transcript.Turns(m.current), nil, m.expandAll)
		if rendered := renderChatBlocks(blocks, m.viewport.Width); rendered != "" {
			content = rendered
		}
	}
	m.viewport.SetContent(content)
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) setStatus(status types.SessionStatus) tea.Cmd {
	m.status = status
	wait := waitForStatus(m.statuses)
	if status.Transitional() {
		if m.spinning {
			return wait
		}
		m.spinning = true
		return tea.Batch(wait, m.loader.Tick)
	}
	m.spinning = false
	return wait
}

func (m *Model) setToast(text string, isError bool) {
	m.toast = text
	m.toastError = isError
}

func (m *Model) headerLine() string {
	status := string(m.status)
	if status == "" {
		status = "unknown"
	}
	header := fmt.Sprintf("agentdeck  %s  [%s]", m.sessionID, status)
	if m.spinning {
		header += " " + m.loader.View()
	}
	return headerStyle.Render(runewidth.Truncate(header, m.width, "…"))
}

func (m *Model) statusLine() string {
	if m.toast != "" {
		style := toastInfoStyle
		if m.toastError {
			style = toastErrorStyle
		}
		return style.Render(runewidth.Truncate(m.toast, m.width, "…"))
	}
	parts := []string{helpText}
	if !m.follow {
		parts = append(parts, "paused")
	}
	return helpStyle.Render(runewidth.Truncate(strings.Join(parts, "  "), m.width, "…"))
}

func waitForTranscript(ch <-chan transcript.Transcript) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		t, ok := <-ch
		if !ok {
			return transcriptClosedMsg{}
		}
		return transcriptMsg{transcript: t}
	}
}

func waitForStatus(ch <-chan types.SessionStatus) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		status, ok := <-ch
		if !ok {
			return statusClosedMsg{}
		}
		return statusMsg{status: status}
	}
}

func copyTranscriptCmd(text string) tea.Cmd {
	return func() tea.Msg {
		method, err := copyTextToClipboard(text)
		return copyResultMsg{method: method, err: err}
	}
}
