package worker_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/relay/worker"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnPersistedEvent
	err    error
}

func (r *recordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnPersistedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) published() []*eventstream.TurnPersistedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*eventstream.TurnPersistedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func newTestPool(pub eventstream.Publisher, queueSize uint) *worker.Pool {
	GinkgoHelper()

	pool, err := worker.NewPool(&worker.Config{
		Publisher:  pub,
		NumWorkers: 2,
		QueueSize:  queueSize,
		Logger:     logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())
	return pool
}

var _ = Describe("Pool", func() {
	It("requires a publisher", func() {
		_, err := worker.NewPool(&worker.Config{Logger: logger.Nop()})
		Expect(err).To(HaveOccurred())
	})

	It("publishes enqueued events before Close returns", func() {
		pub := &recordingPublisher{}
		pool := newTestPool(pub, 16)

		for i := range 5 {
			ok := pool.Enqueue(&eventstream.TurnPersistedEvent{
				EventID:  fmt.Sprintf("evt-%d", i),
				ThreadID: "thread-1",
			})
			Expect(ok).To(BeTrue())
		}

		pool.Close()
		Expect(pub.published()).To(HaveLen(5))
	})

	It("rejects nil events", func() {
		pub := &recordingPublisher{}
		pool := newTestPool(pub, 16)
		defer pool.Close()

		Expect(pool.Enqueue(nil)).To(BeFalse())
	})

	It("keeps running after a publish failure", func() {
		pub := &recordingPublisher{err: fmt.Errorf("broker down")}
		pool := newTestPool(pub, 16)

		Expect(pool.Enqueue(&eventstream.TurnPersistedEvent{EventID: "evt-a"})).To(BeTrue())

		pub.mu.Lock()
		pub.err = nil
		pub.mu.Unlock()

		Expect(pool.Enqueue(&eventstream.TurnPersistedEvent{EventID: "evt-b"})).To(BeTrue())
		pool.Close()

		events := pub.published()
		Expect(events).To(HaveLen(1))
		Expect(events[0].EventID).To(Equal("evt-b"))
	})
})
