// Package storage defines the thread persistence interface and the
// per-thread write serializer shared by all backends.
package storage

import (
	"context"

	"github.com/papercomputeco/relay/pkg/chat"
)

// Driver defines the interface for persisting and retrieving conversation
// threads in a storage backend. Threads are keyed by an externally supplied
// opaque id and created lazily on first contact.
type Driver interface {
	// LoadOrCreate returns the thread with the given id, creating an empty
	// thread titled seedTitle if it does not exist. Idempotent: calling it
	// twice without intervening appends returns identical contents.
	LoadOrCreate(ctx context.Context, threadID, seedTitle string) (*chat.Thread, error)

	// AppendMessage appends a message to the thread and updates its
	// UpdatedAt. Returns NotFoundError if the thread was deleted
	// concurrently.
	AppendMessage(ctx context.Context, threadID string, msg chat.Message) (*chat.Thread, error)

	// List returns summaries for all threads, most recently updated first.
	List(ctx context.Context) ([]chat.ThreadSummary, error)

	// Get retrieves a thread by id. Returns NotFoundError if absent.
	Get(ctx context.Context, threadID string) (*chat.Thread, error)

	// Delete removes a thread by id, immediately and irreversibly.
	// Returns NotFoundError if absent.
	Delete(ctx context.Context, threadID string) error

	// Close closes the store and releases any resources.
	Close() error
}
