// Package worker provides an asynchronous worker pool for publishing
// persisted-turn events through an eventstream.Publisher.
//
// The pool decouples event publishing from the relay's streaming hot path so
// that a slow or unreachable event backend never delays a client stream.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/eventstream"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives turn events. Required.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool publishes turn events asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan *eventstream.TurnPersistedEvent
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan *eventstream.TurnPersistedEvent, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits an event for publishing by the worker pool.
// Returns true if enqueued, false if the queue is full, in which case
// the event is dropped. Publishing is best-effort.
func (p *Pool) Enqueue(event *eventstream.TurnPersistedEvent) bool {
	if event == nil {
		return false
	}

	select {
	case p.queue <- event:
		p.logger.Debug("turn event queued",
			zap.String("thread_id", event.ThreadID),
			zap.String("event_id", event.EventID),
		)
		return true
	default:
		p.logger.Error("turn event not queued, queue full, event dropped",
			zap.String("thread_id", event.ThreadID),
			zap.String("event_id", event.EventID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight events to drain.
// Call this during graceful shutdown after the relay HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls events off the queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for event := range p.queue {
		if err := p.config.Publisher.PublishTurn(context.Background(), event); err != nil {
			p.logger.Error("turn event publish failed",
				zap.String("thread_id", event.ThreadID),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			continue
		}

		p.logger.Info("turn event published",
			zap.String("thread_id", event.ThreadID),
			zap.String("event_id", event.EventID),
		)
	}

	p.logger.Debug("event worker stopped", zap.Uint("worker_id", id))
}
