package sessions

import (
	"strings"
	"sync"

	"agentdeck/internal/logging"
	"agentdeck/internal/types"
)

const (
	SourcePoll = "poll"
	SourcePush = "push"
	SourceSeed = "seed"
)

// Tracker is the single writer for session statuses. Polling and push
// updates both go through Apply so neither can overwrite the other out of
// order.
type Tracker struct {
	mu       sync.Mutex
	statuses map[string]types.SessionStatus
	subs     map[string]map[int]chan types.SessionStatus
	nextSub  int
	logger   logging.Logger
}

func NewTracker(logger logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tracker{
		statuses: map[string]types.SessionStatus{},
		subs:     map[string]map[int]chan types.SessionStatus{},
		logger:   logger,
	}
}

// Apply records status for id. It reports whether the stored status changed.
func (t *Tracker) Apply(id string, status types.SessionStatus, source string) bool {
	id = strings.TrimSpace(id)
	if t == nil || id == "" || status == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, known := t.statuses[id]
	if known && prev == status {
		return false
	}
	t.statuses[id] = status
	if t.logger.Enabled(logging.Debug) {
		t.logger.Debug("session_status_changed",
			logging.F("session_id", id),
			logging.F("from", string(prev)),
			logging.F("to", string(status)),
			logging.F("source", source),
		)
	}
	for _, ch := range t.subs[id] {
		publishLatest(ch, status)
	}
	return true
}

func (t *Tracker) Status(id string) (types.SessionStatus, bool) {
	if t == nil {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.statuses[strings.TrimSpace(id)]
	return status, ok
}

// Seed applies every listed session's status.
func (t *Tracker) Seed(list []types.Session) {
	for _, session := range list {
		t.Apply(session.ID, session.Status, SourceSeed)
	}
}

// Forget drops the stored status and closes subscriptions for id.
func (t *Tracker) Forget(id string) {
	if t == nil {
		return
	}
	id = strings.TrimSpace(id)
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, id)
	for key, ch := range t.subs[id] {
		close(ch)
		delete(t.subs[id], key)
	}
	delete(t.subs, id)
}

// Subscribe delivers the latest status for id after each change. Slow readers
// only see the most recent value.
func (t *Tracker) Subscribe(id string) (<-chan types.SessionStatus, func()) {
	id = strings.TrimSpace(id)
	ch := make(chan types.SessionStatus, 1)
	t.mu.Lock()
	if t.subs[id] == nil {
		t.subs[id] = map[int]chan types.SessionStatus{}
	}
	key := t.nextSub
	t.nextSub++
	t.subs[id][key] = ch
	if status, ok := t.statuses[id]; ok {
		ch <- status
	}
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			subs := t.subs[id]
			if existing, ok := subs[key]; ok {
				delete(subs, key)
				close(existing)
			}
			if len(subs) == 0 {
				delete(t.subs, id)
			}
		})
	}
	return ch, cancel
}

func publishLatest(ch chan types.SessionStatus, status types.SessionStatus) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- status:
	default:
	}
}
