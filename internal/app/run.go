package app

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"agentdeck/internal/logging"
)

type Options struct {
	SessionID  string
	Transcript TranscriptSource
	Status     StatusSource
	// Ended receives at most one value when the stream feeding Transcript
	// stops. A nil channel means the viewer only exits on user request.
	Ended  <-chan error
	Logger logging.Logger
}

// Run shows the live transcript of one session until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	model := NewModel(opts)
	defer model.Close()
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if opts.Ended != nil {
		go func() {
			select {
			case err, ok := <-opts.Ended:
				if ok {
					p.Send(StreamEndedMsg{Err: err})
				}
			case <-ctx.Done():
			}
		}()
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
