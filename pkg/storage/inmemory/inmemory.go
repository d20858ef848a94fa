// Package inmemory provides a map-backed storage driver, used by tests and
// as the default when no database is configured.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/relay/pkg/chat"
	"github.com/papercomputeco/relay/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of threads
	mu sync.RWMutex

	// threads is the in memory map of threads keyed by thread id
	threads map[string]*chat.Thread
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		threads: make(map[string]*chat.Thread),
	}
}

// LoadOrCreate returns the existing thread or creates an empty one titled
// seedTitle. Idempotent.
func (s *Driver) LoadOrCreate(_ context.Context, threadID, seedTitle string) (*chat.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		t = chat.NewThread(threadID, seedTitle)
		s.threads[threadID] = t
	}

	return t.Clone(), nil
}

// AppendMessage appends a message to the thread and bumps UpdatedAt.
func (s *Driver) AppendMessage(_ context.Context, threadID string, msg chat.Message) (*chat.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return nil, storage.NotFoundError{ThreadID: threadID}
	}

	t.Append(msg)
	return t.Clone(), nil
}

// List returns thread summaries, most recently updated first.
func (s *Driver) List(_ context.Context) ([]chat.ThreadSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make([]*chat.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].UpdatedAt.After(ordered[j].UpdatedAt)
	})

	summaries := make([]chat.ThreadSummary, 0, len(ordered))
	for _, t := range ordered {
		summaries = append(summaries, chat.ThreadSummary{ThreadID: t.ThreadID, Title: t.Title})
	}

	return summaries, nil
}

// Get retrieves a thread by id.
func (s *Driver) Get(_ context.Context, threadID string) (*chat.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return nil, storage.NotFoundError{ThreadID: threadID}
	}

	return t.Clone(), nil
}

// Delete removes a thread by id.
func (s *Driver) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return storage.NotFoundError{ThreadID: threadID}
	}

	delete(s.threads, threadID)
	return nil
}

// Count returns the number of threads in the in-memory store.
func (s *Driver) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

// Close is a no-op for the in-memory driver.
func (s *Driver) Close() error {
	return nil
}
