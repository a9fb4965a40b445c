package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"agentdeck/internal/events"
	"agentdeck/internal/logging"
)

const (
	StreamDebugEnv   = "AGENTDECK_STREAM_DEBUG"
	streamBufferSize = 256
	maxStreamLine    = 1024 * 1024
)

// ErrStreamInterrupted is reported when a stream ends without the sentinel or
// a terminal result.
var ErrStreamInterrupted = errors.New("event stream ended without completion")

func streamDebugFromEnv() bool {
	return strings.TrimSpace(os.Getenv(StreamDebugEnv)) == "1"
}

// UpdateStream delivers parsed updates from one open connection. Updates is
// closed when the connection ends; Err is valid after that.
type UpdateStream struct {
	updates chan events.Update
	cancel  context.CancelFunc
	closer  io.Closer
	done    chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error
}

func newUpdateStream(cancel context.CancelFunc, closer io.Closer) *UpdateStream {
	return &UpdateStream{
		updates: make(chan events.Update, streamBufferSize),
		cancel:  cancel,
		closer:  closer,
		done:    make(chan struct{}),
	}
}

func (s *UpdateStream) Updates() <-chan events.Update {
	return s.updates
}

func (s *UpdateStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *UpdateStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}

// Done is closed after the reader goroutine exits.
func (s *UpdateStream) Done() <-chan struct{} {
	return s.done
}

func (s *UpdateStream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.updates)
	close(s.done)
}

// nextUpdate yields the next parsed update. skip is true for frames that
// carried nothing usable.
type nextUpdate func() (update events.Update, skip bool, err error)

func (s *UpdateStream) pump(ctx context.Context, label string, logger logging.Logger, debug bool, next nextUpdate) {
	start := time.Now()
	count := 0
	terminal := false
	var result error
	defer func() {
		if debug {
			logger.Info("stream_close",
				logging.F("stream", label),
				logging.F("count", count),
				logging.F("dur", time.Since(start)),
				logging.F("error", result),
			)
		}
		s.finish(result)
	}()
	for {
		update, skip, err := next()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				result = ctx.Err()
			case terminal:
				result = nil
			case errors.Is(err, io.EOF):
				result = ErrStreamInterrupted
			default:
				result = fmt.Errorf("read %s stream: %w", label, err)
			}
			return
		}
		if skip {
			continue
		}
		select {
		case s.updates <- update:
		case <-ctx.Done():
			result = ctx.Err()
			return
		}
		count++
		if count == 1 && debug {
			logger.Info("stream_first", logging.F("stream", label), logging.F("kind", update.Kind()))
		}
		switch update.Kind() {
		case events.KindEnd:
			return
		case events.KindResult:
			terminal = true
		}
	}
}

func sseLines(body io.Reader) nextUpdate {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	return func() (events.Update, bool, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, false, err
			}
			return nil, false, io.EOF
		}
		update, ok := events.ParseLine(scanner.Text())
		return update, !ok, nil
	}
}

// SessionEvents opens the push stream for a session over SSE.
func (c *Client) SessionEvents(ctx context.Context, id string) (*UpdateStream, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("session id is required")
	}
	path := "/api/sessions/" + url.PathEscape(id) + "/events"
	return c.openSSE(ctx, http.MethodGet, c.endpoint(path, nil), nil, "events:"+id)
}

// StartAction triggers a long-running action. cursor is the number of log
// lines already received, sent as logIndex so the server can resume.
func (c *Client) StartAction(ctx context.Context, action string, req ActionRequest, cursor int) (*UpdateStream, error) {
	action = strings.TrimSpace(action)
	if !IsAction(action) {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if cursor < 0 {
		cursor = 0
	}
	query := url.Values{}
	query.Set("logIndex", strconv.Itoa(cursor))
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	return c.openSSE(ctx, http.MethodPost, c.endpoint("/api/actions/"+action, query), body, "action:"+action)
}

func (c *Client) openSSE(ctx context.Context, method, target string, body []byte, label string) (*UpdateStream, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	if c.streamDebug {
		c.logger.Info("stream_open", logging.F("stream", label), logging.F("url", target))
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		cancel()
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req.Header)

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		cancel()
		if c.streamDebug {
			c.logger.Info("stream_error", logging.F("stream", label), logging.F("status", resp.StatusCode))
		}
		return nil, decodeAPIError(resp)
	}

	stream := newUpdateStream(cancel, resp.Body)
	next := sseLines(resp.Body)
	if isJSONResponse(resp) {
		next = directResult(resp.Body)
	}
	go func() {
		defer cancel()
		defer resp.Body.Close()
		stream.pump(ctx, label, c.logger, c.streamDebug, next)
	}()
	return stream, nil
}

// directResult handles actions that answer with a plain JSON result instead
// of a stream.
func directResult(body io.Reader) nextUpdate {
	done := false
	return func() (events.Update, bool, error) {
		if done {
			return nil, false, io.EOF
		}
		done = true
		data, err := io.ReadAll(io.LimitReader(body, maxStreamLine))
		if err != nil {
			return nil, false, err
		}
		update, ok := events.ParsePayload(data)
		if !ok || update.Kind() != events.KindResult {
			return nil, false, fmt.Errorf("unexpected action response: %q", strings.TrimSpace(string(data)))
		}
		return update, false, nil
	}
}

func isJSONResponse(resp *http.Response) bool {
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	return strings.HasPrefix(contentType, "application/json")
}
