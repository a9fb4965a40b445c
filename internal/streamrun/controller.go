package streamrun

import (
	"context"
	"errors"
	"sync"
	"time"

	"agentdeck/internal/events"
	"agentdeck/internal/logging"
	"agentdeck/internal/types"
)

type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseRunning      Phase = "running"
	PhaseReconnecting Phase = "reconnecting"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

const (
	DefaultMaxReconnects  = 5
	DefaultReconnectDelay = time.Second
	DefaultMaxDelay       = 10 * time.Second

	MaxReconnectsExceeded = "max reconnection attempts exceeded"
	streamEndedMessage    = "stream ended"
)

var ErrRunActive = errors.New("stream run already active")

// Stream is one open connection to a streaming endpoint. Updates is closed
// when the connection ends; Err then reports why.
type Stream interface {
	Updates() <-chan events.Update
	Err() error
	Close() error
}

// StartFunc opens a stream resuming after cursor log lines.
type StartFunc func(ctx context.Context, cursor int) (Stream, error)

type State struct {
	Phase             Phase
	Running           bool
	Logs              []string
	Result            *types.Result
	Reconnecting      bool
	ReconnectionCount int
	ResumeCursor      int
}

func (s State) Settled() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseFailed
}

// view shares the log history with the controller. Logs is capped at its
// length so the controller's later appends never show through, and callers
// must treat it as read-only.
func (s State) view() State {
	out := s
	if s.Logs != nil {
		out.Logs = s.Logs[:len(s.Logs):len(s.Logs)]
	}
	if s.Result != nil {
		result := *s.Result
		out.Result = &result
	}
	return out
}

func (s State) clone() State {
	out := s
	if s.Logs != nil {
		out.Logs = append([]string(nil), s.Logs...)
	}
	if s.Result != nil {
		result := *s.Result
		out.Result = &result
	}
	return out
}

type Config struct {
	MaxReconnects  int
	ReconnectDelay time.Duration
	MaxDelay       time.Duration
	// IsPermanent reports start errors that must not be retried.
	IsPermanent func(error) bool
	Logger      logging.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxReconnects < 0 {
		c.MaxReconnects = 0
	}
	if c.ReconnectDelay < 0 {
		c.ReconnectDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	return c
}

func DefaultConfig() Config {
	return Config{
		MaxReconnects:  DefaultMaxReconnects,
		ReconnectDelay: DefaultReconnectDelay,
		MaxDelay:       DefaultMaxDelay,
	}
}

type Option func(*Controller)

// WithOnChange observes every transition. The State passed to fn shares its
// Logs with the controller and must not be modified; use State for a copy.
func WithOnChange(fn func(State)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// WithLogSink receives every accepted log line in arrival order.
func WithLogSink(fn func(string)) Option {
	return func(c *Controller) {
		c.logSink = fn
	}
}

type Controller struct {
	cfg      Config
	onChange func(State)
	logSink  func(string)

	mu     sync.Mutex
	state  State
	gen    int
	cancel context.CancelFunc
	done   chan struct{}

	notifyMu sync.Mutex
}

func New(cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg.withDefaults(),
		state: State{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Start begins a run from a clean state. Only one run may be active.
func (c *Controller) Start(start StartFunc) error {
	return c.StartAt(start, 0)
}

// StartAt begins a run whose first connection resumes after cursor lines,
// for resources that were already producing output before this process
// attached to them.
func (c *Controller) StartAt(start StartFunc, cursor int) error {
	if start == nil {
		return errors.New("start func is required")
	}
	if cursor < 0 {
		cursor = 0
	}
	c.mu.Lock()
	if c.state.Running && c.cancel != nil {
		c.mu.Unlock()
		return ErrRunActive
	}
	c.abandonLocked()
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.state = State{Phase: PhaseRunning, Running: true, ResumeCursor: cursor}
	snapshot := c.state.view()
	c.mu.Unlock()

	c.notify(gen, snapshot)
	go c.run(ctx, gen, start, done)
	return nil
}

// Reset abandons any run and returns to idle with no logs or result.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.abandonLocked()
	gen := c.gen
	c.state = State{Phase: PhaseIdle}
	snapshot := c.state.view()
	c.mu.Unlock()
	c.notify(gen, snapshot)
}

// Abandon stops the current run. The state is left as it was and no further
// transitions or observer calls happen for that run.
func (c *Controller) Abandon() {
	c.mu.Lock()
	c.abandonLocked()
	c.mu.Unlock()
}

func (c *Controller) abandonLocked() {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Done is closed when the current run settles or is abandoned.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

func (c *Controller) Wait(ctx context.Context) (State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-c.Done():
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context, gen int, start StartFunc, done chan struct{}) {
	defer close(done)
	logger := c.cfg.Logger
	for {
		cursor, ok := c.cursor(gen)
		if !ok {
			return
		}
		stream, err := start(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if c.cfg.IsPermanent != nil && c.cfg.IsPermanent(err) {
				logger.Warn("stream_start_rejected", logging.F("error", err))
				c.settle(gen, types.Result{OK: false, Message: err.Error(), Local: true})
				return
			}
			if !c.interrupted(ctx, gen, err) {
				return
			}
			continue
		}
		c.opened(gen)
		finished := c.consume(ctx, gen, stream)
		_ = stream.Close()
		if finished || ctx.Err() != nil {
			return
		}
		if !c.interrupted(ctx, gen, stream.Err()) {
			return
		}
	}
}

func (c *Controller) consume(ctx context.Context, gen int, stream Stream) bool {
	updates := stream.Updates()
	if updates == nil {
		return false
	}
	for {
		select {
		case <-ctx.Done():
			return true
		case update, ok := <-updates:
			if !ok {
				return false
			}
			if c.handle(gen, update) {
				return true
			}
		}
	}
}

func (c *Controller) handle(gen int, update events.Update) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return true
	}
	var line *string
	finished := false
	switch u := update.(type) {
	case events.LogLine:
		if u.HasIndex && u.Index < c.state.ResumeCursor {
			c.mu.Unlock()
			return false
		}
		c.state.Logs = append(c.state.Logs, u.Text)
		c.state.ResumeCursor++
		if u.HasIndex && u.Index+1 > c.state.ResumeCursor {
			// the server skipped lines it no longer holds
			c.state.ResumeCursor = u.Index + 1
		}
		text := u.Text
		line = &text
	case events.Connected:
		c.state.Phase = PhaseRunning
		c.state.Reconnecting = false
	case events.Result:
		c.settleLocked(u.Result)
		finished = true
	case events.End:
		c.settleLocked(types.Result{OK: true, Message: streamEndedMessage, Local: true})
		finished = true
	default:
		c.mu.Unlock()
		return false
	}
	var snapshot State
	if c.onChange != nil {
		snapshot = c.state.view()
	}
	c.mu.Unlock()

	if line != nil && c.logSink != nil {
		c.logSink(*line)
	}
	c.notify(gen, snapshot)
	return finished
}

func (c *Controller) cursor(gen int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return 0, false
	}
	return c.state.ResumeCursor, true
}

func (c *Controller) opened(gen int) {
	c.mu.Lock()
	if gen != c.gen || !c.state.Reconnecting {
		c.mu.Unlock()
		return
	}
	c.state.Phase = PhaseRunning
	c.state.Reconnecting = false
	snapshot := c.state.view()
	c.mu.Unlock()
	c.notify(gen, snapshot)
}

// interrupted records a lost connection and waits out the backoff. It returns
// false when the run must stop.
func (c *Controller) interrupted(ctx context.Context, gen int, cause error) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.state.ReconnectionCount++
	attempt := c.state.ReconnectionCount
	if attempt > c.cfg.MaxReconnects {
		c.settleLocked(types.Result{OK: false, Message: MaxReconnectsExceeded, Local: true})
		snapshot := c.state.view()
		c.mu.Unlock()
		c.cfg.Logger.Warn("stream_reconnect_exhausted",
			logging.F("attempts", attempt-1),
			logging.F("error", cause),
		)
		c.notify(gen, snapshot)
		return false
	}
	c.state.Phase = PhaseReconnecting
	c.state.Reconnecting = true
	cursor := c.state.ResumeCursor
	snapshot := c.state.view()
	c.mu.Unlock()

	delay := reconnectDelay(attempt, c.cfg.ReconnectDelay, c.cfg.MaxDelay)
	c.cfg.Logger.Info("stream_reconnect",
		logging.F("attempt", attempt),
		logging.F("cursor", cursor),
		logging.F("delay", delay),
		logging.F("error", cause),
	)
	c.notify(gen, snapshot)
	return sleepWithContext(ctx, delay)
}

func (c *Controller) settle(gen int, result types.Result) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.settleLocked(result)
	snapshot := c.state.view()
	c.mu.Unlock()
	c.notify(gen, snapshot)
}

func (c *Controller) settleLocked(result types.Result) {
	if result.OK {
		c.state.Phase = PhaseCompleted
	} else {
		c.state.Phase = PhaseFailed
	}
	c.state.Running = false
	c.state.Reconnecting = false
	c.state.Result = &result
}

func (c *Controller) notify(gen int, snapshot State) {
	if c.onChange == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	current := c.gen
	c.mu.Unlock()
	if current != gen {
		return
	}
	c.onChange(snapshot)
}

func reconnectDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func sleepWithContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
