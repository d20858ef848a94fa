package storage

import (
	"context"
	"sync"

	"github.com/papercomputeco/relay/pkg/chat"
)

// serializedDriver wraps a Driver and serializes all mutating calls for a
// given thread id behind a per-key mutex. Relay sessions for distinct
// threads still run fully in parallel; sessions targeting the same thread
// persist messages in store-arrival order.
type serializedDriver struct {
	inner Driver

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Serialized returns a Driver that guarantees single-writer-per-key
// semantics on top of inner. Reads pass through untouched.
func Serialized(inner Driver) Driver {
	return &serializedDriver{
		inner: inner,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex for a thread id, creating it on first use.
// Lock entries are small and never evicted; a relay process serves a
// bounded set of threads between restarts.
func (s *serializedDriver) lockFor(threadID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[threadID] = l
	}
	return l
}

func (s *serializedDriver) LoadOrCreate(ctx context.Context, threadID, seedTitle string) (*chat.Thread, error) {
	l := s.lockFor(threadID)
	l.Lock()
	defer l.Unlock()
	return s.inner.LoadOrCreate(ctx, threadID, seedTitle)
}

func (s *serializedDriver) AppendMessage(ctx context.Context, threadID string, msg chat.Message) (*chat.Thread, error) {
	l := s.lockFor(threadID)
	l.Lock()
	defer l.Unlock()
	return s.inner.AppendMessage(ctx, threadID, msg)
}

func (s *serializedDriver) Delete(ctx context.Context, threadID string) error {
	l := s.lockFor(threadID)
	l.Lock()
	defer l.Unlock()
	return s.inner.Delete(ctx, threadID)
}

func (s *serializedDriver) List(ctx context.Context) ([]chat.ThreadSummary, error) {
	return s.inner.List(ctx)
}

func (s *serializedDriver) Get(ctx context.Context, threadID string) (*chat.Thread, error) {
	return s.inner.Get(ctx, threadID)
}

func (s *serializedDriver) Close() error {
	return s.inner.Close()
}
