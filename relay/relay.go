// Package relay provides the streaming completion relay server: it accepts a
// user turn over HTTP, persists it, forwards the conversation to the upstream
// provider, and streams the reply back to the client as SSE frames while
// recording the completed exchange.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/sse"
	"github.com/papercomputeco/relay/pkg/storage"
	"github.com/papercomputeco/relay/pkg/upstream"
	"github.com/papercomputeco/relay/relay/worker"
)

// Relay is the streaming relay server. One Session runs per inbound chat
// request; sessions for distinct threads execute in parallel while writes to
// a single thread are serialized at the storage boundary.
type Relay struct {
	config    Config
	driver    storage.Driver
	completer upstream.Completer
	pool      *worker.Pool
	logger    *zap.Logger
	server    *fiber.App
}

// chatStreamRequest is the body of a streaming chat request.
type chatStreamRequest struct {
	ThreadID string `json:"threadId"`
	Message  string `json:"message"`
}

// errorResponse is the JSON error body for the auxiliary endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

// New creates a new Relay over the given storage driver and completion
// provider.
func New(config Config, driver storage.Driver, completer upstream.Completer, logger *zap.Logger) (*Relay, error) {
	if driver == nil {
		return nil, errors.New("storage driver is required")
	}
	if completer == nil {
		return nil, errors.New("completer is required")
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	var pool *worker.Pool
	if config.Publisher != nil {
		var err error
		pool, err = worker.NewPool(&worker.Config{
			Publisher:  config.Publisher,
			NumWorkers: config.EventWorkers,
			QueueSize:  config.EventQueueSize,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create worker pool: %w", err)
		}
	}

	r := &Relay{
		config:    config,
		driver:    driver,
		completer: completer,
		pool:      pool,
		logger:    logger,
		server:    app,
	}

	app.Post("/api/chat/stream", r.handleChatStream)
	app.Get("/api/threads", r.handleListThreads)
	app.Get("/api/threads/:id", r.handleGetThread)
	app.Delete("/api/threads/:id", r.handleDeleteThread)
	app.Get("/ping", r.handlePing)

	return r, nil
}

// Run starts the relay server on the configured listening address.
func (r *Relay) Run() error {
	r.logger.Info("starting relay server",
		zap.String("listen", r.config.ListenAddr),
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (r *Relay) RunWithListener(listener net.Listener) error {
	r.logger.Info("starting relay server",
		zap.String("listen", listener.Addr().String()),
	)

	return r.server.Listener(listener)
}

// Close gracefully shuts down the server and drains the event worker pool.
func (r *Relay) Close() error {
	err := r.server.Shutdown()
	if r.pool != nil {
		r.pool.Close()
	}
	return err
}

// handleChatStream runs one streaming exchange. All outcomes, including
// validation failures, are reported as SSE frames rather than HTTP statuses
// so the client decodes a single response shape.
func (r *Relay) handleChatStream(c *fiber.Ctx) error {
	var req chatStreamRequest
	if err := c.BodyParser(&req); err != nil {
		r.logger.Debug("unparseable chat request body", zap.Error(err))
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// Use context.Background() instead of c.Context() because fasthttp
	// recycles its RequestCtx after the handler returns, while the session
	// runs asynchronously and needs the provider connection to stay open.
	//
	// io.Pipe + SetBodyStream gives direct backpressure: each frame write
	// blocks until fasthttp flushes it to the TCP socket, so deltas reach
	// the client one chunk at a time with no multi-chunk buffering. A
	// client disconnect closes the pipe reader, the next write fails, and
	// the session cancels the provider call.
	pr, pw := io.Pipe()
	sess := NewSession(r.driver, r.completer, r.pool, r.logger)

	go func() {
		defer pw.Close()
		sess.Run(context.Background(), sse.NewWriter(pw), req.ThreadID, req.Message)
		r.logger.Debug("session finished",
			zap.String("thread_id", req.ThreadID),
			zap.String("state", sess.State().String()),
		)
	}()

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (r *Relay) handleListThreads(c *fiber.Ctx) error {
	summaries, err := r.driver.List(c.Context())
	if err != nil {
		r.logger.Error("failed to list threads", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "failed to list threads"})
	}

	return c.JSON(summaries)
}

func (r *Relay) handleGetThread(c *fiber.Ctx) error {
	threadID := c.Params("id")

	thread, err := r.driver.Get(c.Context(), threadID)
	if err != nil {
		var nf storage.NotFoundError
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "thread not found"})
		}
		r.logger.Error("failed to get thread",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "failed to get thread"})
	}

	return c.JSON(thread)
}

func (r *Relay) handleDeleteThread(c *fiber.Ctx) error {
	threadID := c.Params("id")

	if err := r.driver.Delete(c.Context(), threadID); err != nil {
		var nf storage.NotFoundError
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "thread not found"})
		}
		r.logger.Error("failed to delete thread",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "failed to delete thread"})
	}

	return c.JSON(fiber.Map{"deleted": threadID})
}

func (r *Relay) handlePing(c *fiber.Ctx) error {
	return c.SendString("pong")
}
