// Package client consumes the relay's streaming chat endpoint. It decodes
// the framed response incrementally, exposes the in-progress reply for live
// rendering, and supports cancelling an in-flight exchange.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/relay/pkg/chat"
	"github.com/papercomputeco/relay/pkg/sse"
)

// ErrNotFound is returned when the relay reports an unknown thread.
var ErrNotFound = errors.New("thread not found")

// ErrBusy is returned when Send is called while another exchange is running.
var ErrBusy = errors.New("an exchange is already in flight")

// StreamError is a terminal error frame received from the relay.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: %s", e.Message)
}

// ReplyPhase tags the client's current reply state.
type ReplyPhase int

const (
	// PhaseIdle means no exchange is in progress and no buffer is held.
	PhaseIdle ReplyPhase = iota

	// PhaseStreaming means deltas are arriving; Buffer holds the partial reply.
	PhaseStreaming

	// PhaseSettled means the last exchange completed and its reply was
	// committed.
	PhaseSettled
)

// ReplyState is a snapshot of the in-progress reply.
type ReplyState struct {
	Phase  ReplyPhase
	Buffer string
}

// Config is the client configuration.
type Config struct {
	// BaseURL is the relay's base URL (e.g., "http://localhost:8080").
	BaseURL string

	// HTTPClient overrides the default HTTP client when non-nil.
	HTTPClient *http.Client
}

// Client talks to one relay instance. A Client runs at most one streaming
// exchange at a time; the auxiliary thread calls are safe at any point.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	phase  ReplyPhase
	buffer strings.Builder
	cancel context.CancelFunc
}

// New creates a Client for the relay at baseURL.
func New(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		// No overall timeout: the stream stays open for the duration of
		// the exchange. Cancellation bounds it instead.
		httpClient = &http.Client{Timeout: 0}
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http:    httpClient,
		phase:   PhaseIdle,
	}
}

// Reply returns a snapshot of the current reply state.
func (c *Client) Reply() ReplyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ReplyState{Phase: c.phase, Buffer: c.buffer.String()}
}

// Cancel aborts the in-flight exchange, if any. The in-progress buffer is
// discarded and no further delta callbacks fire.
func (c *Client) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.phase = PhaseIdle
	c.buffer.Reset()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Send runs one streaming exchange and returns the committed assistant
// reply. onDelta, when non-nil, fires for each content delta as it arrives.
// A terminal error frame is returned as a *StreamError; cancellation is
// returned as context.Canceled.
func (c *Client) Send(ctx context.Context, threadID, message string, onDelta func(delta string)) (string, error) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return "", ErrBusy
	}
	c.cancel = cancel
	c.phase = PhaseStreaming
	c.buffer.Reset()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	body, err := json.Marshal(struct {
		ThreadID string `json:"threadId"`
		Message  string `json:"message"`
	}{ThreadID: threadID, Message: message})
	if err != nil {
		c.reset()
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		c.reset()
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		c.reset()
		if ctx.Err() != nil {
			return "", context.Canceled
		}
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.reset()
		return "", fmt.Errorf("unexpected status %d from relay", resp.StatusCode)
	}

	return c.consume(ctx, resp.Body, onDelta)
}

// consume decodes frames until a terminal frame arrives. The frame reader
// tolerates frames split across network reads by buffering the trailing
// fragment until the rest arrives.
func (c *Client) consume(ctx context.Context, body io.Reader, onDelta func(delta string)) (string, error) {
	reader := sse.NewReader(body)

	for {
		ev, err := reader.Next()
		if err != nil {
			c.reset()
			if ctx.Err() != nil {
				return "", context.Canceled
			}
			return "", fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			c.reset()
			if ctx.Err() != nil {
				return "", context.Canceled
			}
			return "", errors.New("stream ended without a terminal frame")
		}

		switch ev.Type {
		case "error":
			c.reset()
			return "", &StreamError{Message: decodeErrorFrame(ev.Data)}

		case "end":
			return c.commit(), nil

		default:
			delta, ok := decodeContentFrame(ev.Data)
			if !ok {
				continue
			}

			c.mu.Lock()
			// A concurrent Cancel already discarded the buffer; drop the
			// delta and let the aborted read surface the cancellation.
			if c.cancel == nil {
				c.mu.Unlock()
				continue
			}
			c.buffer.WriteString(delta)
			c.mu.Unlock()

			if onDelta != nil {
				onDelta(delta)
			}
		}
	}
}

// commit settles the exchange and returns the accumulated reply.
func (c *Client) commit() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := c.buffer.String()
	c.buffer.Reset()
	c.phase = PhaseSettled
	return text
}

// reset discards the buffer and returns to the idle phase.
func (c *Client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer.Reset()
	c.phase = PhaseIdle
}

func decodeContentFrame(data string) (string, bool) {
	var frame struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal([]byte(data), &frame); err != nil || frame.Content == nil {
		return "", false
	}
	return *frame.Content, true
}

func decodeErrorFrame(data string) string {
	var frame struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &frame); err != nil || frame.Error == "" {
		return "unknown stream error"
	}
	return frame.Error
}

// Threads lists thread summaries from the relay.
func (c *Client) Threads(ctx context.Context) ([]chat.ThreadSummary, error) {
	var summaries []chat.ThreadSummary
	if err := c.getJSON(ctx, "/api/threads", &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Thread fetches one thread by id.
func (c *Client) Thread(ctx context.Context, threadID string) (*chat.Thread, error) {
	var thread chat.Thread
	if err := c.getJSON(ctx, "/api/threads/"+threadID, &thread); err != nil {
		return nil, err
	}
	return &thread, nil
}

// DeleteThread deletes one thread by id.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/threads/"+threadID, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.doJSON(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.doJSON(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) doJSON(req *http.Request) (*http.Response, error) {
	// Auxiliary calls are quick JSON exchanges; bound them independently
	// of the streaming client.
	httpClient := c.http
	if httpClient.Timeout == 0 {
		bounded := *httpClient
		bounded.Timeout = 30 * time.Second
		httpClient = &bounded
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from relay", resp.StatusCode)
	}
}
