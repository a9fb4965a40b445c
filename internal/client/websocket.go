package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"agentdeck/internal/events"
	"agentdeck/internal/logging"
)

const (
	wsHandshakeTimeout = 5 * time.Second
	wsReadIdleTimeout  = 60 * time.Second
	wsPingInterval     = 20 * time.Second
	wsWriteTimeout     = 5 * time.Second
)

// SessionEventsWS opens the push stream for a session over a WebSocket. Each
// text message carries one payload, framed or not.
func (c *Client) SessionEventsWS(ctx context.Context, id string) (*UpdateStream, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("session id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := c.wsURL("/api/sessions/" + url.PathEscape(id) + "/ws")
	if err != nil {
		return nil, err
	}
	label := "ws:" + id
	if c.streamDebug {
		c.logger.Info("stream_open", logging.F("stream", label), logging.F("url", target))
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: wsHandshakeTimeout,
		NetDialContext:   (&net.Dialer{Timeout: wsHandshakeTimeout}).DialContext,
	}
	header := http.Header{}
	c.authorize(header)
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
			defer resp.Body.Close()
			return nil, decodeAPIError(resp)
		}
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(wsReadIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadIdleTimeout))
	})

	ctx, cancel := context.WithCancel(ctx)
	stream := newUpdateStream(cancel, conn)
	go func() {
		select {
		case <-ctx.Done():
		case <-stream.Done():
			cancel()
		}
		_ = conn.Close()
	}()
	go pingLoop(ctx, conn, stream.Done())
	go stream.pump(ctx, label, c.logger, c.streamDebug, wsMessages(conn))
	return stream, nil
}

func (c *Client) wsURL(path string) (string, error) {
	parsed, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	return parsed.String(), nil
}

func wsMessages(conn *websocket.Conn) nextUpdate {
	return func() (events.Update, bool, error) {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, false, io.EOF
			}
			return nil, false, err
		}
		if messageType != websocket.TextMessage {
			return nil, true, nil
		}
		data = bytes.TrimSpace(data)
		if bytes.HasPrefix(data, []byte(events.DataPrefix)) {
			update, ok := events.ParseLine(string(data))
			return update, !ok, nil
		}
		update, ok := events.ParsePayload(data)
		return update, !ok, nil
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
