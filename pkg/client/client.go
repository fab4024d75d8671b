package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when the daemon does not know the process.
	ErrNotFound = errors.New("process not found")
	// ErrUnauthorized is returned for rejected or missing credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// Client provides HTTP client functionality to communicate with a supervisr daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu       sync.RWMutex
	token    string
	username string
	password string
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
	// TLS is used for https base URLs. Nil means the system defaults.
	TLS     *tls.Config

	// Token is sent as a bearer token. Otherwise Username and Password, when
	// set, are sent as basic credentials.
	Token    string
	Username string
	Password string
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new supervisr API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	hc := &http.Client{Timeout: config.Timeout}
	if config.TLS != nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = config.TLS
		hc.Transport = tr
	}
	return &Client{
		baseURL:  config.BaseURL,
		logger:   config.Logger,
		client:   hc,
		token:    config.Token,
		username: config.Username,
		password: config.Password,
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/processes", nil, nil)
	c.logger.Debug("Daemon reachability check", "reachable", err == nil, "error", err)
	return err == nil
}

// List returns every supervised process, sorted by name.
func (c *Client) List(ctx context.Context) ([]ProcessStatus, error) {
	var out []ProcessStatus
	if err := c.do(ctx, http.MethodGet, "/processes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns one process. Unknown names yield ErrNotFound.
func (c *Client) Status(ctx context.Context, name string) (ProcessStatus, error) {
	var out ProcessStatus
	err := c.do(ctx, http.MethodGet, "/status?name="+url.QueryEscape(name), nil, &out)
	return out, err
}

// Stop forces name into the stopped state and returns the resulting state.
func (c *Client) Stop(ctx context.Context, name string) (string, error) {
	c.logger.Debug("Stopping process", "name", name)
	var out StopResponse
	if err := c.do(ctx, http.MethodPost, "/stop?name="+url.QueryEscape(name), nil, &out); err != nil {
		return "", err
	}
	return out.State, nil
}

// AddProcess registers a command with the daemon.
func (c *Client) AddProcess(ctx context.Context, req ProcessRequest) (ProcessStatus, error) {
	c.logger.Debug("Registering process", "name", req.Name, "command", req.Command)
	data, err := json.Marshal(req)
	if err != nil {
		return ProcessStatus{}, fmt.Errorf("marshal request: %w", err)
	}
	var out ProcessStatus
	err = c.do(ctx, http.MethodPost, "/processes", data, &out)
	return out, err
}

// Dependencies returns the daemon's dependency graph.
func (c *Client) Dependencies(ctx context.Context) (map[string][]string, error) {
	out := map[string][]string{}
	if err := c.do(ctx, http.MethodGet, "/dependencies", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Login exchanges credentials for a bearer token, which later requests use.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	data, err := json.Marshal(LoginRequest{Username: username, Password: password})
	if err != nil {
		return Token{}, fmt.Errorf("marshal request: %w", err)
	}
	var tok Token
	if err := c.do(ctx, http.MethodPost, "/login", data, &tok); err != nil {
		return Token{}, err
	}
	c.mu.Lock()
	c.token = tok.Value
	c.mu.Unlock()
	return tok, nil
}

// do performs HTTP request with common error handling and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		errorResp.Error = http.StatusText(resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, errorResp.Error)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, errorResp.Error)
	}
	c.logger.Debug("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, errorResp.Error)
}
