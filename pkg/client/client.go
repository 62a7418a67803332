package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Update is one change event delivered on the live stream.
type Update struct {
	Type  string                 `json:"type"`
	Model string                 `json:"model"`
	Entry map[string]interface{} `json:"entry"`
}

// Client is an HTTP client for the Livewire API
type Client struct {
	baseURL         string
	httpClient      *http.Client
	headers         http.Header
	websocketDialer *websocket.Dialer
	timeout         time.Duration
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithTimeout sets the request timeout for REST calls
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithHeaders sets additional HTTP headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers.Set(k, v)
		}
	}
}

// New creates a new Livewire API client
func New(baseURL string, options ...ClientOption) *Client {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	client := &Client{
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		headers:         headers,
		websocketDialer: websocket.DefaultDialer,
		timeout:         10 * time.Second,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// ListMatches retrieves the snapshots of all matches the server holds
func (c *Client) ListMatches(ctx context.Context) ([]map[string]interface{}, error) {
	resp, err := c.do(ctx, "GET", "/live/matches")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Matches []map[string]interface{} `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Matches, nil
}

// GetMatch retrieves the current snapshot of one match
func (c *Client) GetMatch(ctx context.Context, id string) (map[string]interface{}, error) {
	resp, err := c.do(ctx, "GET", fmt.Sprintf("/live/matches/%s", url.PathEscape(id)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Match map[string]interface{} `json:"match"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return response.Match, nil
}

// Subscribe opens a WebSocket subscription for live updates
func (c *Client) Subscribe() (*Subscription, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}

	if u.Scheme == "http" {
		u.Scheme = "ws"
	} else if u.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/stream"

	conn, _, err := c.websocketDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	sub := &Subscription{
		Conn:   conn,
		Events: make(chan *Update, 100),
		Done:   make(chan struct{}),
	}

	go sub.receiveEvents()

	return sub, nil
}

// SubscribeSSE opens a Server-Sent Events subscription for live
// updates. The subscription lives until the context is cancelled,
// Close is called, or the server drops the connection.
func (c *Client) SubscribeSSE(ctx context.Context) (*SSESubscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/stream-sse", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client carries a timeout that would kill a long-lived
	// stream, so dial with a transport-only client here.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	sub := &SSESubscription{
		Events: make(chan *Update, 100),
		Done:   make(chan struct{}),
		cancel: cancel,
		body:   resp.Body,
	}

	go sub.receiveEvents()

	return sub, nil
}

// do makes an HTTP request
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}

	for k, v := range c.headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}

		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, resp.Status)
	}

	return resp, nil
}

// parseUpdate decodes one stream payload, filtering the lifecycle
// messages the server interleaves with real updates.
func parseUpdate(payload string) *Update {
	if payload == "connected" || payload == "heartbeat" {
		return nil
	}

	var update Update
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		return nil
	}
	if update.Model == "" {
		return nil
	}

	return &update
}

// Subscription represents a WebSocket subscription for live updates
type Subscription struct {
	Conn   *websocket.Conn
	Events chan *Update
	Done   chan struct{}
}

// receiveEvents processes WebSocket messages
func (s *Subscription) receiveEvents() {
	defer func() {
		close(s.Events)
		close(s.Done)
		s.Conn.Close()
	}()

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			return
		}

		update := parseUpdate(string(message))
		if update == nil {
			continue
		}

		select {
		case s.Events <- update:
		default:
			// Channel is full, drop event
		}
	}
}

// Close closes the subscription
func (s *Subscription) Close() error {
	err := s.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	select {
	case <-s.Done:
	case <-time.After(time.Second):
		s.Conn.Close()
	}

	return err
}

// SSESubscription represents a Server-Sent Events subscription
type SSESubscription struct {
	Events chan *Update
	Done   chan struct{}
	cancel context.CancelFunc
	body   io.ReadCloser
}

// receiveEvents reads the event stream line by line. Comment frames
// (the server's keepalives) are skipped; data frames are buffered
// until the blank line that terminates an event.
func (s *SSESubscription) receiveEvents() {
	defer func() {
		close(s.Events)
		close(s.Done)
		s.body.Close()
	}()

	scanner := bufio.NewScanner(s.body)
	var data []string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if len(data) > 0 {
				update := parseUpdate(strings.Join(data, "\n"))
				data = data[:0]
				if update == nil {
					continue
				}
				select {
				case s.Events <- update:
				default:
					// Channel is full, drop event
				}
			}
		case strings.HasPrefix(line, ":"):
			// Comment frame, keepalive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

// Close closes the SSE subscription
func (s *SSESubscription) Close() error {
	s.cancel()
	return nil
}
