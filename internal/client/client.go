package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"agentdeck/internal/logging"
	"agentdeck/internal/types"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:4096"
	defaultRequestTimeout = 10 * time.Second
)

type Options struct {
	BaseURL   string
	Token     string
	TokenPath string
	// RequestsPerSecond paces ListSessions. Zero means unlimited.
	RequestsPerSecond float64
	StreamDebug       bool
	Logger            logging.Logger
	HTTPClient        *http.Client
}

type Client struct {
	baseURL     string
	tokenPath   string
	token       string
	http        *http.Client
	stream      *http.Client
	limiter     *rate.Limiter
	logger      logging.Logger
	streamDebug bool
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	c := &Client{
		baseURL:     baseURL,
		tokenPath:   opts.TokenPath,
		token:       strings.TrimSpace(opts.Token),
		http:        httpClient,
		stream:      &http.Client{Transport: httpClient.Transport},
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
		streamDebug: opts.StreamDebug || streamDebugFromEnv(),
	}
	if c.token == "" {
		_ = c.loadToken()
	}
	return c
}

func NewWithBaseURL(baseURL, token string) *Client {
	return New(Options{BaseURL: baseURL, Token: token})
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSessions fetches the session list. Calls share one limiter so several
// pollers cannot flood the server.
func (c *Client) ListSessions(ctx context.Context) ([]types.Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions", nil, &raw); err != nil {
		return nil, err
	}
	return decodeSessions(raw)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(header http.Header) {
	if strings.TrimSpace(c.token) == "" {
		_ = c.loadToken()
	}
	if token := strings.TrimSpace(c.token); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) loadToken() error {
	if strings.TrimSpace(c.tokenPath) == "" {
		return nil
	}
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.token = ""
			return nil
		}
		return err
	}
	c.token = strings.TrimSpace(string(data))
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	if len(query) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + query.Encode()
}

func decodeSessions(raw json.RawMessage) ([]types.Session, error) {
	raw = bytes.TrimSpace(raw)
	var list []sessionDTO
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
	} else {
		var resp sessionsResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
		list = resp.Sessions
	}
	out := make([]types.Session, 0, len(list))
	for _, item := range list {
		if strings.TrimSpace(item.ID) == "" {
			continue
		}
		out = append(out, item.toSession())
	}
	return out, nil
}

func decodeAPIError(resp *http.Response) error {
	type errorPayload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	var payload errorPayload
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	if payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if payload.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// IsPermanent reports errors that retrying the same request cannot fix.
func IsPermanent(err error) bool {
	apiErr := asAPIError(err)
	if apiErr == nil {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

func jsonBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	return json.Marshal(body)
}
