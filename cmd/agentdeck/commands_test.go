package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"agentdeck/internal/app"
	agentclient "agentdeck/internal/client"
	"agentdeck/internal/config"
	"agentdeck/internal/events"
	"agentdeck/internal/logging"
	"agentdeck/internal/streamrun"
	"agentdeck/internal/types"
)

type fakeStream struct {
	updates chan events.Update
	err     error
}

func newFakeStream(err error, updates ...events.Update) *fakeStream {
	ch := make(chan events.Update, len(updates))
	for _, update := range updates {
		ch <- update
	}
	close(ch)
	return &fakeStream{updates: ch, err: err}
}

func (s *fakeStream) Updates() <-chan events.Update { return s.updates }
func (s *fakeStream) Err() error                    { return s.err }
func (s *fakeStream) Close() error                  { return nil }

type fakeCommandClient struct {
	mu            sync.Mutex
	sessions      []types.Session
	listErr       error
	events        *fakeStream
	transports    []string
	actionStreams []*fakeStream
	actionErr     error
	actionCalls   int
	cursors       []int
	requests      []agentclient.ActionRequest
}

func (f *fakeCommandClient) ListSessions(context.Context) ([]types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, f.listErr
}

func (f *fakeCommandClient) SessionEvents(_ context.Context, _ string, transport string) (streamrun.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transports = append(f.transports, transport)
	if f.events == nil {
		return newFakeStream(nil), nil
	}
	return f.events, nil
}

func (f *fakeCommandClient) StartAction(_ context.Context, _ string, req agentclient.ActionRequest, cursor int) (streamrun.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	f.requests = append(f.requests, req)
	if f.actionErr != nil {
		return nil, f.actionErr
	}
	if f.actionCalls >= len(f.actionStreams) {
		return nil, errors.New("unexpected start")
	}
	stream := f.actionStreams[f.actionCalls]
	f.actionCalls++
	return stream, nil
}

type testHarness struct {
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	wiring  commandWiring
	viewers []app.Options
}

func newHarness(fake *fakeCommandClient, tweak func(*config.Config)) *testHarness {
	h := &testHarness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.wiring = commandWiring{
		stdout: h.stdout,
		stderr: h.stderr,
		loadConfig: func(string) (config.Config, error) {
			cfg := config.Default()
			cfg.Logging.Level = "error"
			cfg.Stream.ReconnectDelayMS = 1
			cfg.Stream.ReconnectMaxDelayMS = 2
			if tweak != nil {
				tweak(&cfg)
			}
			return cfg, nil
		},
		newClient: func(config.Config, logging.Logger) (commandClient, error) {
			return fake, nil
		},
		runViewer: func(_ context.Context, opts app.Options) error {
			h.viewers = append(h.viewers, opts)
			return nil
		},
		openLog: func() (io.Writer, error) { return io.Discard, nil },
		version: "test",
	}
	return h
}

func (h *testHarness) run(args ...string) error {
	return newApp(h.wiring).Run(append([]string{"agentdeck"}, args...))
}

func logLine(index int, text string) events.LogLine {
	return events.LogLine{Text: text, Index: index, HasIndex: true}
}

func TestPSPrintsSessionTable(t *testing.T) {
	fake := &fakeCommandClient{sessions: []types.Session{
		{ID: "s1", Status: types.SessionStatusRunning, Agent: "build", Title: "fix tests"},
		{ID: "s2", Status: types.SessionStatusStarting},
	}}
	h := newHarness(fake, nil)
	if err := h.run("ps"); err != nil {
		t.Fatalf("ps: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", h.stdout.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "running") || !strings.Contains(lines[1], "fix tests") {
		t.Fatalf("unexpected table:\n%s", h.stdout.String())
	}
	if !strings.Contains(lines[2], "starting") || !strings.Contains(lines[2], "-") {
		t.Fatalf("unexpected second row %q", lines[2])
	}
}

func TestPSJSON(t *testing.T) {
	fake := &fakeCommandClient{sessions: []types.Session{{ID: "s1", Status: types.SessionStatusStopped}}}
	h := newHarness(fake, nil)
	if err := h.run("ps", "--json"); err != nil {
		t.Fatalf("ps --json: %v", err)
	}
	var got []types.Session
	if err := json.Unmarshal(h.stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if diff := cmp.Diff(fake.sessions, got); diff != "" {
		t.Fatalf("unexpected sessions (-want +got):\n%s", diff)
	}
}

func TestPSReportsListError(t *testing.T) {
	h := newHarness(&fakeCommandClient{listErr: errors.New("boom")}, nil)
	err := h.run("ps")
	if err == nil || !strings.Contains(err.Error(), "list sessions: boom") {
		t.Fatalf("expected wrapped list error, got %v", err)
	}
}

func TestRunResumesAfterInterruption(t *testing.T) {
	fake := &fakeCommandClient{actionStreams: []*fakeStream{
		newFakeStream(agentclient.ErrStreamInterrupted, logLine(0, "resolving"), logLine(1, "uploading")),
		newFakeStream(nil,
			logLine(1, "uploading"),
			logLine(2, "serving"),
			events.Result{Result: types.Result{OK: true, Message: "deployed", Extra: map[string]any{"url": "http://localhost:3000"}}},
		),
	}}
	h := newHarness(fake, nil)
	if err := h.run("run", "--session", "s1", "--param", "port=3000", "web-server"); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "resolving\nuploading\nserving\nweb-server: deployed\n  url: http://localhost:3000\n"
	if got := h.stdout.String(); got != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", got, want)
	}
	if diff := cmp.Diff([]int{0, 2}, fake.cursors); diff != "" {
		t.Fatalf("unexpected resume cursors (-want +got):\n%s", diff)
	}
	if !strings.Contains(h.stderr.String(), "reconnecting (attempt 1)") {
		t.Fatalf("expected reconnect notice, got %q", h.stderr.String())
	}
	req := fake.requests[0]
	if req.SessionID != "s1" || req.Params["port"] != "3000" {
		t.Fatalf("unexpected request %#v", req)
	}
}

func TestRunFailureResultIsError(t *testing.T) {
	fake := &fakeCommandClient{actionStreams: []*fakeStream{
		newFakeStream(nil, logLine(0, "checking"), events.Result{Result: types.Result{OK: false, Message: "port in use"}}),
	}}
	h := newHarness(fake, nil)
	err := h.run("run", "web-server")
	if err == nil || err.Error() != "web-server failed: port in use" {
		t.Fatalf("expected failure error, got %v", err)
	}
	if len(fake.cursors) != 1 {
		t.Fatalf("expected no reconnect after a failure result, got %v", fake.cursors)
	}
}

func TestRunPermanentStartErrorIsNotRetried(t *testing.T) {
	fake := &fakeCommandClient{actionErr: &agentclient.APIError{StatusCode: 404, Message: "no such session"}}
	h := newHarness(fake, nil)
	err := h.run("run", "commit-message")
	if err == nil || !strings.Contains(err.Error(), "no such session") {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(fake.cursors) != 1 {
		t.Fatalf("expected a single attempt, got %v", fake.cursors)
	}
}

func TestRunGivesUpAfterMaxReconnects(t *testing.T) {
	fake := &fakeCommandClient{actionErr: errors.New("connection refused")}
	h := newHarness(fake, func(cfg *config.Config) { cfg.Stream.MaxReconnects = 2 })
	err := h.run("run", "domain-mapping")
	if err == nil || !strings.Contains(err.Error(), streamrun.MaxReconnectsExceeded) {
		t.Fatalf("expected exhausted reconnects, got %v", err)
	}
	if len(fake.cursors) != 3 {
		t.Fatalf("expected initial attempt plus two retries, got %v", fake.cursors)
	}
}

func TestRunQuietPrintsBoundedWindow(t *testing.T) {
	updates := make([]events.Update, 0, 7)
	for i := 0; i < 6; i++ {
		updates = append(updates, logLine(i, "line-"+string(rune('1'+i))))
	}
	updates = append(updates, events.End{})
	fake := &fakeCommandClient{actionStreams: []*fakeStream{newFakeStream(nil, updates...)}}
	h := newHarness(fake, func(cfg *config.Config) {
		cfg.Stream.HeadLines = 2
		cfg.Stream.TailLines = 2
	})
	if err := h.run("run", "--quiet", "web-server"); err != nil {
		t.Fatalf("run --quiet: %v", err)
	}
	want := "line-1\nline-2\n2 lines omitted\nline-5\nline-6\nweb-server: stream ended\n"
	if got := h.stdout.String(); got != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", got, want)
	}
}

func TestRunResolvesDirectory(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeCommandClient{actionStreams: []*fakeStream{newFakeStream(nil, events.End{})}}
	h := newHarness(fake, nil)
	if err := h.run("run", "--dir", dir, "commit-message"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := fake.requests[0].Directory; got != dir {
		t.Fatalf("expected directory %q, got %q", dir, got)
	}
	if err := h.run("run", "--dir", dir+"/missing", "commit-message"); err == nil {
		t.Fatalf("expected missing directory to be rejected")
	}
}

func TestRunRejectsUnknownAction(t *testing.T) {
	fake := &fakeCommandClient{}
	h := newHarness(fake, nil)
	if err := h.run("run", "deploy"); err == nil || !strings.Contains(err.Error(), "unknown action") {
		t.Fatalf("expected unknown action error, got %v", err)
	}
	if err := h.run("run"); err == nil {
		t.Fatalf("expected missing action error")
	}
	if len(fake.cursors) != 0 {
		t.Fatalf("expected no requests")
	}
}

func TestWatchPlainPrintsTranscript(t *testing.T) {
	fake := &fakeCommandClient{
		sessions: []types.Session{{ID: "s1", Status: types.SessionStatusRunning}},
		events: newFakeStream(nil,
			events.MessageUpdated{Info: types.Message{ID: "m1", Role: types.RoleUser}},
			events.PartUpdated{Part: types.Part{ID: "p1", MessageID: "m1", Kind: types.PartKindText, Text: "fix the bug"}},
			events.PartUpdated{Part: types.Part{ID: "p2", MessageID: "m2", Kind: types.PartKindText, Text: "done"}},
			events.End{},
		),
	}
	h := newHarness(fake, nil)
	if err := h.run("watch", "--plain", "s1"); err != nil {
		t.Fatalf("watch --plain: %v", err)
	}
	out := h.stdout.String()
	if !strings.Contains(out, "[user]\nfix the bug\n") || !strings.Contains(out, "[agent]\ndone\n") {
		t.Fatalf("unexpected transcript output:\n%s", out)
	}
	if diff := cmp.Diff([]string{config.TransportSSE}, fake.transports); diff != "" {
		t.Fatalf("unexpected transports (-want +got):\n%s", diff)
	}
}

func TestWatchPlainReportsInterruptedStream(t *testing.T) {
	fake := &fakeCommandClient{events: newFakeStream(agentclient.ErrStreamInterrupted)}
	h := newHarness(fake, nil)
	err := h.run("watch", "--plain", "s1")
	if !errors.Is(err, agentclient.ErrStreamInterrupted) {
		t.Fatalf("expected interrupted stream error, got %v", err)
	}
}

func TestWatchOpensViewerWithTransportOverride(t *testing.T) {
	fake := &fakeCommandClient{sessions: []types.Session{{ID: "s1", Status: types.SessionStatusStarting}}}
	h := newHarness(fake, nil)
	if err := h.run("watch", "--transport", "ws", "s1"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if len(h.viewers) != 1 {
		t.Fatalf("expected viewer to run once, got %d", len(h.viewers))
	}
	opts := h.viewers[0]
	if opts.SessionID != "s1" || opts.Transcript == nil || opts.Status == nil || opts.Ended == nil {
		t.Fatalf("unexpected viewer options %#v", opts)
	}
	if diff := cmp.Diff([]string{config.TransportWebSocket}, fake.transports); diff != "" {
		t.Fatalf("unexpected transports (-want +got):\n%s", diff)
	}
}

func TestWatchRequiresSessionID(t *testing.T) {
	h := newHarness(&fakeCommandClient{}, nil)
	if err := h.run("watch"); err == nil {
		t.Fatalf("expected error without session id")
	}
}

func TestConfigDefaultsPrintsTOML(t *testing.T) {
	h := newHarness(&fakeCommandClient{}, nil)
	if err := h.run("config", "--defaults"); err != nil {
		t.Fatalf("config: %v", err)
	}
	out := h.stdout.String()
	for _, want := range []string{"[server]", "[stream]", "max_reconnects = 5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"a=1", "b=x=y"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"a": "1", "b": "x=y"}, got); diff != "" {
		t.Fatalf("unexpected params (-want +got):\n%s", diff)
	}
	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Fatalf("expected error for missing =")
	}
	if got, err := parseParams(nil); err != nil || got != nil {
		t.Fatalf("expected nil params, got %#v %v", got, err)
	}
}
