package transcript

import (
	"context"
	"sync"

	"agentdeck/internal/events"
	"agentdeck/internal/types"
)

// StatusSink receives session status changes observed on a push stream.
type StatusSink interface {
	Apply(sessionID string, status types.SessionStatus, source string) bool
}

// Live owns the transcript of one session and applies updates in arrival
// order. Subscribers see the latest snapshot; intermediate snapshots may be
// skipped for a slow reader.
type Live struct {
	mu         sync.Mutex
	transcript Transcript
	applied    int
	nextSubID  int
	subs       map[int]chan Transcript
	status     StatusSink
}

func NewLive(initial Transcript, status StatusSink) *Live {
	return &Live{
		transcript: initial,
		subs:       map[int]chan Transcript{},
		status:     status,
	}
}

func (l *Live) Apply(update events.Update) Transcript {
	if update == nil {
		return l.Snapshot()
	}
	if changed, ok := update.(events.StatusChanged); ok && l.status != nil {
		l.status.Apply(changed.SessionID, changed.Status, "push")
	}
	l.mu.Lock()
	l.transcript = Apply(l.transcript, update)
	l.applied++
	snapshot := l.transcript
	for _, ch := range l.subs {
		publishLatest(ch, snapshot)
	}
	l.mu.Unlock()
	return snapshot
}

func (l *Live) Snapshot() Transcript {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transcript
}

func (l *Live) Applied() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applied
}

func (l *Live) Subscribe() (<-chan Transcript, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSubID++
	id := l.nextSubID
	ch := make(chan Transcript, 1)
	l.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Consume applies updates until the channel closes or ctx is done.
func (l *Live) Consume(ctx context.Context, updates <-chan events.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			l.Apply(update)
		}
	}
}

func publishLatest(ch chan Transcript, snapshot Transcript) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snapshot:
	default:
	}
}
