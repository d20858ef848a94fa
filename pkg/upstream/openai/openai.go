// Package openai provides an upstream.Completer for OpenAI-compatible
// chat-completions endpoints (OpenRouter, OpenAI, and lookalikes).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/chat"
	"github.com/papercomputeco/relay/pkg/sse"
	"github.com/papercomputeco/relay/pkg/upstream"
)

const defaultTimeout = 60 * time.Second

// Config holds the settings for a Client. The API key is injected here at
// construction rather than read from ambient process state.
type Config struct {
	// BaseURL is the API root, e.g. "https://openrouter.ai/api/v1".
	BaseURL string

	// APIKey is the bearer token for the provider.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string

	// Stream requests incremental delivery when true. When false the
	// provider returns the whole answer at once and the client delivers
	// it as a single delta.
	Stream bool

	// Timeout bounds the entire provider call, connect through last
	// delta. Defaults to 60s.
	Timeout time.Duration
}

// Client implements upstream.Completer against a chat-completions API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client. The http.Client carries no timeout of its
// own; the per-call deadline set in Complete bounds streaming reads too.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// completionRequest is the chat-completions request body.
type completionRequest struct {
	Model    string              `json:"model"`
	Messages []completionMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionResponse is the non-streaming response shape. Only the fields
// the relay consumes are modeled.
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// streamChunk is a single streaming SSE payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Complete sends the conversation to the provider and returns a channel of
// text deltas. Failures before any content is produced are returned
// synchronously as *upstream.Error.
func (c *Client) Complete(ctx context.Context, messages []chat.Message) (<-chan upstream.Delta, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)

	resp, err := c.send(callCtx, messages)
	if err != nil {
		cancel()
		return nil, err
	}

	ch := make(chan upstream.Delta)
	go func() {
		defer close(ch)
		defer cancel()
		defer resp.Body.Close()

		if c.config.Stream {
			c.consumeStream(callCtx, resp.Body, ch)
			return
		}
		c.consumeBatch(callCtx, resp.Body, ch)
	}()

	return ch, nil
}

func (c *Client) send(ctx context.Context, messages []chat.Message) (*http.Response, error) {
	msgs := make([]completionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, completionMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(completionRequest{
		Model:    c.config.Model,
		Messages: msgs,
		Stream:   c.config.Stream,
	})
	if err != nil {
		return nil, &upstream.Error{Kind: upstream.KindMalformed, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	url := c.config.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &upstream.Error{Kind: upstream.KindTransport, Err: fmt.Errorf("creating request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	c.logger.Debug("sending completion request",
		zap.String("url", url),
		zap.String("model", c.config.Model),
		zap.Bool("stream", c.config.Stream),
		zap.Int("message_count", len(msgs)),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Warn("upstream returned error status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return nil, &upstream.Error{Kind: upstream.KindStatus, Status: resp.StatusCode}
	}

	return resp, nil
}

// consumeStream parses SSE chunks and forwards each delta. Every send
// selects on ctx so an abandoned consumer releases the connection promptly.
func (c *Client) consumeStream(ctx context.Context, body io.Reader, ch chan<- upstream.Delta) {
	reader := sse.NewReader(body)

	for {
		ev, err := reader.Next()
		if err != nil {
			c.emit(ctx, ch, upstream.Delta{Err: classifyTransport(err)})
			return
		}
		if ev == nil {
			return
		}
		if ev.Data == "[DONE]" {
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			// Tolerate unknown event payloads mid-stream (keep-alives,
			// provider annotations); only content-bearing frames matter.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		if !c.emit(ctx, ch, upstream.Delta{Text: text}) {
			return
		}
	}
}

// consumeBatch validates a non-streaming response and delivers the whole
// answer as a single delta.
func (c *Client) consumeBatch(ctx context.Context, body io.Reader, ch chan<- upstream.Delta) {
	raw, err := io.ReadAll(body)
	if err != nil {
		c.emit(ctx, ch, upstream.Delta{Err: classifyTransport(err)})
		return
	}

	var resp completionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.emit(ctx, ch, upstream.Delta{Err: &upstream.Error{Kind: upstream.KindMalformed, Err: fmt.Errorf("decoding response: %w", err)}})
		return
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		c.emit(ctx, ch, upstream.Delta{Err: &upstream.Error{Kind: upstream.KindMalformed, Err: errors.New("response missing content field")}})
		return
	}

	c.emit(ctx, ch, upstream.Delta{Text: *resp.Choices[0].Message.Content})
}

// emit sends a delta unless the caller has gone away. Returns false when
// the context is done.
func (c *Client) emit(ctx context.Context, ch chan<- upstream.Delta, d upstream.Delta) bool {
	select {
	case ch <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

// classifyTransport maps an I/O error to a timeout or transport failure.
func classifyTransport(err error) *upstream.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &upstream.Error{Kind: upstream.KindTimeout, Err: err}
	}
	return &upstream.Error{Kind: upstream.KindTransport, Err: err}
}
