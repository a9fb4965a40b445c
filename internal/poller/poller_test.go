package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agentdeck/internal/sessions"
	"agentdeck/internal/types"
)

type scriptedLister struct {
	mu       sync.Mutex
	calls    int
	statuses []types.SessionStatus
	err      error
}

func (l *scriptedLister) ListSessions(ctx context.Context) ([]types.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	idx := l.calls - 1
	if idx >= len(l.statuses) {
		idx = len(l.statuses) - 1
	}
	return []types.Session{
		{ID: "other", Status: types.SessionStatusRunning},
		{ID: "s1", Status: l.statuses[idx]},
	}, nil
}

func (l *scriptedLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func runAsync(p *Poller, ctx context.Context, id string) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, id)
	}()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop")
		return nil
	}
}

func TestPollerStopsWhenPollReportsRunning(t *testing.T) {
	tracker := sessions.NewTracker(nil)
	tracker.Apply("s1", types.SessionStatusStarting, sessions.SourceSeed)
	lister := &scriptedLister{statuses: []types.SessionStatus{
		types.SessionStatusStarting,
		types.SessionStatusStarting,
		types.SessionStatusRunning,
	}}
	p := New(lister, tracker, 5*time.Millisecond, nil)
	if err := waitResult(t, runAsync(p, context.Background(), "s1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status, _ := tracker.Status("s1"); status != types.SessionStatusRunning {
		t.Fatalf("expected running, got %q", status)
	}
	if calls := lister.callCount(); calls != 3 {
		t.Fatalf("expected 3 polls, got %d", calls)
	}
	time.Sleep(20 * time.Millisecond)
	if calls := lister.callCount(); calls != 3 {
		t.Fatalf("poller kept running after stop: %d calls", calls)
	}
}

func TestPollerStopsOnPushUpdate(t *testing.T) {
	tracker := sessions.NewTracker(nil)
	tracker.Apply("s1", types.SessionStatusStarting, sessions.SourceSeed)
	lister := &scriptedLister{statuses: []types.SessionStatus{types.SessionStatusStarting}}
	p := New(lister, tracker, time.Hour, nil)
	done := runAsync(p, context.Background(), "s1")
	time.Sleep(10 * time.Millisecond)
	tracker.Apply("s1", types.SessionStatusError, sessions.SourcePush)
	if err := waitResult(t, done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lister.callCount() != 0 {
		t.Fatalf("expected no polls with an hour interval")
	}
}

func TestPollerSkipsSettledSession(t *testing.T) {
	tracker := sessions.NewTracker(nil)
	tracker.Apply("s1", types.SessionStatusRunning, sessions.SourceSeed)
	lister := &scriptedLister{statuses: []types.SessionStatus{types.SessionStatusRunning}}
	if err := New(lister, tracker, time.Millisecond, nil).Run(context.Background(), "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lister.callCount() != 0 {
		t.Fatalf("expected no polls for a running session")
	}
}

func TestPollerRetriesAfterErrorsUntilCanceled(t *testing.T) {
	tracker := sessions.NewTracker(nil)
	tracker.Apply("s1", types.SessionStatusStarting, sessions.SourceSeed)
	lister := &scriptedLister{err: errors.New("connection refused")}
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(New(lister, tracker, 2*time.Millisecond, nil), ctx, "s1")
	deadline := time.Now().Add(2 * time.Second)
	for lister.callCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated polls after errors")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := waitResult(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if status, _ := tracker.Status("s1"); status != types.SessionStatusStarting {
		t.Fatalf("errors must not change status, got %q", status)
	}
}

func TestNewDefaultsInterval(t *testing.T) {
	if p := New(nil, nil, 0, nil); p.interval != DefaultInterval {
		t.Fatalf("expected default interval, got %v", p.interval)
	}
}
