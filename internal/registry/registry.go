package registry

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"agentdeck/internal/logging"
	"agentdeck/internal/logwindow"
	"agentdeck/internal/streamrun"
)

var ErrEntryNotFound = errors.New("run entry not found")

// Entry tracks one long-running resource: its controller and the bounded
// window of its output.
type Entry struct {
	ID         string
	Controller *streamrun.Controller

	mu     sync.Mutex
	runID  string
	window *logwindow.Window
}

func (e *Entry) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

func (e *Entry) Buffer() logwindow.LogBuffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Buffer()
}

func (e *Entry) Lines() []string {
	return logwindow.Render(e.Buffer())
}

func (e *Entry) State() streamrun.State {
	return e.Controller.State()
}

func (e *Entry) appendLine(line string) {
	e.mu.Lock()
	e.window.Append(line)
	e.mu.Unlock()
}

func (e *Entry) resetWindow() {
	e.mu.Lock()
	e.window.Reset()
	e.runID = uuid.NewString()
	e.mu.Unlock()
}

type Config struct {
	Stream    streamrun.Config
	HeadLines int
	TailLines int
	Logger    logging.Logger
	// OnChange, when set, observes every controller transition.
	OnChange func(id string, state streamrun.State)
}

type Registry struct {
	cfg     Config
	logger  logging.Logger
	mu      sync.Mutex
	entries map[string]*Entry
}

func New(cfg Config) *Registry {
	if cfg.HeadLines <= 0 {
		cfg.HeadLines = logwindow.DefaultHeadLines
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = logwindow.DefaultTailLines
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Stream.Logger == nil {
		cfg.Stream.Logger = logger
	}
	return &Registry{
		cfg:     cfg,
		logger:  logger,
		entries: map[string]*Entry{},
	}
}

// Start runs start under the entry for id, creating it when missing. A
// settled entry is reset first; an active one is left alone.
func (r *Registry) Start(id string, start streamrun.StartFunc) (*Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("run id is required")
	}
	r.mu.Lock()
	entry, ok := r.entries[id]
	if !ok {
		entry = r.newEntryLocked(id, logwindow.New(r.cfg.HeadLines, r.cfg.TailLines))
	}
	r.mu.Unlock()

	if entry.Controller.State().Running {
		return entry, streamrun.ErrRunActive
	}
	entry.Controller.Reset()
	entry.resetWindow()
	if err := entry.Controller.Start(start); err != nil {
		return entry, err
	}
	r.logger.Info("run_started", logging.F("id", id), logging.F("run_id", entry.RunID()))
	return entry, nil
}

// Discover registers a resource that was already running before this
// process saw it, seeding its window from the server's snapshot.
func (r *Registry) Discover(id string, buf logwindow.LogBuffer) *Entry {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		return entry
	}
	entry := r.newEntryLocked(id, logwindow.FromBuffer(buf, r.cfg.HeadLines, r.cfg.TailLines))
	r.logger.Debug("run_discovered", logging.F("id", id), logging.F("total", buf.Total))
	return entry
}

// Attach starts following a discovered resource from where its window ends.
func (r *Registry) Attach(id string, start streamrun.StartFunc) (*Entry, error) {
	entry, ok := r.Get(id)
	if !ok {
		return nil, ErrEntryNotFound
	}
	entry.mu.Lock()
	cursor := entry.window.Total()
	entry.mu.Unlock()
	if err := entry.Controller.StartAt(start, cursor); err != nil {
		return entry, err
	}
	return entry, nil
}

func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[strings.TrimSpace(id)]
	return entry, ok
}

func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Remove abandons the entry's run and forgets it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	entry, ok := r.entries[strings.TrimSpace(id)]
	if ok {
		delete(r.entries, entry.ID)
	}
	r.mu.Unlock()
	if ok {
		entry.Controller.Abandon()
	}
	return ok
}

// Prune removes entries that are not running and not in live. It returns
// the removed ids.
func (r *Registry) Prune(live map[string]bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, entry := range r.entries {
		if live[id] || entry.Controller.State().Running {
			continue
		}
		entry.Controller.Abandon()
		delete(r.entries, id)
		removed = append(removed, id)
	}
	sort.Strings(removed)
	return removed
}

func (r *Registry) newEntryLocked(id string, window *logwindow.Window) *Entry {
	entry := &Entry{
		ID:     id,
		runID:  uuid.NewString(),
		window: window,
	}
	opts := []streamrun.Option{streamrun.WithLogSink(entry.appendLine)}
	if r.cfg.OnChange != nil {
		onChange := r.cfg.OnChange
		opts = append(opts, streamrun.WithOnChange(func(state streamrun.State) {
			onChange(id, state)
		}))
	}
	entry.Controller = streamrun.New(r.cfg.Stream, opts...)
	r.entries[id] = entry
	return entry
}
