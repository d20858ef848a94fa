package storage_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/chat"
	"github.com/papercomputeco/relay/pkg/storage"
	"github.com/papercomputeco/relay/pkg/storage/inmemory"
)

var _ = Describe("Serialized", func() {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		driver = storage.Serialized(inmemory.NewDriver())
		ctx = context.Background()
	})

	It("passes reads and writes through to the inner driver", func() {
		_, err := driver.LoadOrCreate(ctx, "T1", "hello")
		Expect(err).NotTo(HaveOccurred())

		_, err = driver.AppendMessage(ctx, "T1", chat.NewMessage(chat.RoleUser, "hello"))
		Expect(err).NotTo(HaveOccurred())

		t, err := driver.Get(ctx, "T1")
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Messages).To(HaveLen(1))
	})

	It("keeps appends for one thread atomic under concurrent writers", func() {
		_, err := driver.LoadOrCreate(ctx, "T1", "hello")
		Expect(err).NotTo(HaveOccurred())

		const writers = 8
		const perWriter = 25

		var wg sync.WaitGroup
		wg.Add(writers)
		for w := range writers {
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for i := range perWriter {
					_, err := driver.AppendMessage(ctx, "T1", chat.NewMessage(chat.RoleUser, fmt.Sprintf("w%d-m%d", w, i)))
					Expect(err).NotTo(HaveOccurred())
				}
			}()
		}
		wg.Wait()

		t, err := driver.Get(ctx, "T1")
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Messages).To(HaveLen(writers * perWriter))

		// Each writer's own messages must appear in its program order even
		// though writers interleave.
		positions := make(map[int]int, writers)
		for _, m := range t.Messages {
			var w, i int
			_, err := fmt.Sscanf(m.Content, "w%d-m%d", &w, &i)
			Expect(err).NotTo(HaveOccurred())
			Expect(i).To(Equal(positions[w]))
			positions[w]++
		}
	})

	It("does not block writers for distinct threads against each other", func() {
		_, err := driver.LoadOrCreate(ctx, "A", "a")
		Expect(err).NotTo(HaveOccurred())
		_, err = driver.LoadOrCreate(ctx, "B", "b")
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		wg.Add(2)
		for _, id := range []string{"A", "B"} {
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for i := range 50 {
					_, err := driver.AppendMessage(ctx, id, chat.NewMessage(chat.RoleUser, fmt.Sprintf("m%d", i)))
					Expect(err).NotTo(HaveOccurred())
				}
			}()
		}
		wg.Wait()

		a, err := driver.Get(ctx, "A")
		Expect(err).NotTo(HaveOccurred())
		b, err := driver.Get(ctx, "B")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Messages).To(HaveLen(50))
		Expect(b.Messages).To(HaveLen(50))
	})
})
