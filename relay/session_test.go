package relay

import (
	"context"
	"io"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/chat"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/sse"
	"github.com/papercomputeco/relay/pkg/storage"
	"github.com/papercomputeco/relay/pkg/storage/inmemory"
	"github.com/papercomputeco/relay/pkg/upstream"
)

// stubCompleter is a scriptable provider for session tests.
type stubCompleter struct {
	deltas   []string
	err      error         // returned from Complete before any content
	midErr   error         // delivered after the scripted deltas
	block    bool          // hold the stream open until ctx is done
	released chan struct{} // closed when the stub observes cancellation
}

func (s *stubCompleter) Complete(ctx context.Context, _ []chat.Message) (<-chan upstream.Delta, error) {
	if s.err != nil {
		return nil, s.err
	}

	ch := make(chan upstream.Delta)
	go func() {
		defer close(ch)

		for _, d := range s.deltas {
			select {
			case ch <- upstream.Delta{Text: d}:
			case <-ctx.Done():
				if s.released != nil {
					close(s.released)
				}
				return
			}
		}

		if s.midErr != nil {
			select {
			case ch <- upstream.Delta{Err: s.midErr}:
			case <-ctx.Done():
			}
			return
		}

		if s.block {
			<-ctx.Done()
			if s.released != nil {
				close(s.released)
			}
		}
	}()

	return ch, nil
}

// failingWriter simulates a client that has disconnected: every write fails.
type failingWriter struct{}

func (failingWriter) Write(_ []byte) (int, error) {
	return 0, io.ErrClosedPipe
}

// assistantAppendFailDriver fails appends of assistant messages only.
type assistantAppendFailDriver struct {
	storage.Driver
}

func (d *assistantAppendFailDriver) AppendMessage(ctx context.Context, threadID string, msg chat.Message) (*chat.Thread, error) {
	if msg.Role == chat.RoleAssistant {
		return nil, io.ErrUnexpectedEOF
	}
	return d.Driver.AppendMessage(ctx, threadID, msg)
}

// readFrames decodes every SSE frame in raw.
func readFrames(raw string) []sse.Event {
	GinkgoHelper()

	var frames []sse.Event
	r := sse.NewReader(strings.NewReader(raw))
	for {
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		if ev == nil {
			return frames
		}
		frames = append(frames, *ev)
	}
}

var _ = Describe("Session", func() {
	var (
		driver *inmemory.Driver
		out    strings.Builder
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		out.Reset()
	})

	runSession := func(completer upstream.Completer, threadID, message string) *Session {
		sess := NewSession(storage.Serialized(driver), completer, nil, logger.Nop())
		sess.Run(context.Background(), sse.NewWriter(&out), threadID, message)
		return sess
	}

	Context("with a streaming provider", func() {
		It("relays each delta as a frame and persists the full exchange", func() {
			sess := runSession(&stubCompleter{deltas: []string{"Hi", " there"}}, "T1", "hello")

			Expect(sess.State()).To(Equal(StateCompleted))

			frames := readFrames(out.String())
			Expect(frames).To(HaveLen(3))
			Expect(frames[0].Type).To(BeEmpty())
			Expect(frames[0].Data).To(Equal(`{"content":"Hi"}`))
			Expect(frames[1].Data).To(Equal(`{"content":" there"}`))
			Expect(frames[2].Type).To(Equal("end"))
			Expect(frames[2].Data).To(Equal(`{"done": true}`))

			thread, err := driver.Get(context.Background(), "T1")
			Expect(err).NotTo(HaveOccurred())
			Expect(thread.Messages).To(HaveLen(2))
			Expect(thread.Messages[0].Role).To(Equal(chat.RoleUser))
			Expect(thread.Messages[0].Content).To(Equal("hello"))
			Expect(thread.Messages[1].Role).To(Equal(chat.RoleAssistant))
			Expect(thread.Messages[1].Content).To(Equal("Hi there"))
		})

		It("titles a new thread from the first user message", func() {
			runSession(&stubCompleter{deltas: []string{"ok"}}, "T1", "what is a monad?")

			thread, err := driver.Get(context.Background(), "T1")
			Expect(err).NotTo(HaveOccurred())
			Expect(thread.Title).To(Equal("what is a monad?"))
		})
	})

	Context("with a single-delta provider", func() {
		It("relays the whole reply as one frame", func() {
			sess := runSession(&stubCompleter{deltas: []string{"full reply"}}, "T1", "hello")

			Expect(sess.State()).To(Equal(StateCompleted))

			frames := readFrames(out.String())
			Expect(frames).To(HaveLen(2))
			Expect(frames[0].Data).To(Equal(`{"content":"full reply"}`))
			Expect(frames[1].Type).To(Equal("end"))
		})
	})

	Context("when the request is invalid", func() {
		It("emits a terminal error frame and leaves the store untouched", func() {
			sess := runSession(&stubCompleter{}, "T1", "   ")

			Expect(sess.State()).To(Equal(StateFailed))

			frames := readFrames(out.String())
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Type).To(Equal("error"))
			Expect(frames[0].Data).To(ContainSubstring("required"))

			Expect(driver.Count()).To(BeZero())
		})

		It("rejects a blank thread id", func() {
			sess := runSession(&stubCompleter{}, "  ", "hello")

			Expect(sess.State()).To(Equal(StateFailed))
			Expect(driver.Count()).To(BeZero())
		})
	})

	Context("when the provider fails before any content", func() {
		It("emits a single error frame and appends no assistant message", func() {
			completer := &stubCompleter{
				err: &upstream.Error{Kind: upstream.KindStatus, Status: 503},
			}
			sess := runSession(completer, "T1", "hi")

			Expect(sess.State()).To(Equal(StateFailed))

			frames := readFrames(out.String())
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Type).To(Equal("error"))
			Expect(frames[0].Data).To(Equal(`{"error":"provider returned an error"}`))

			// The user turn is persisted before the provider call.
			thread, err := driver.Get(context.Background(), "T1")
			Expect(err).NotTo(HaveOccurred())
			Expect(thread.Messages).To(HaveLen(1))
			Expect(thread.Messages[0].Role).To(Equal(chat.RoleUser))
		})
	})

	Context("when the provider fails mid-stream", func() {
		It("emits an error frame in place of the end frame and persists nothing", func() {
			completer := &stubCompleter{
				deltas: []string{"partial"},
				midErr: &upstream.Error{Kind: upstream.KindTransport, Err: io.ErrUnexpectedEOF},
			}
			sess := runSession(completer, "T1", "hi")

			Expect(sess.State()).To(Equal(StateFailed))

			frames := readFrames(out.String())
			Expect(frames).To(HaveLen(2))
			Expect(frames[0].Data).To(Equal(`{"content":"partial"}`))
			Expect(frames[1].Type).To(Equal("error"))

			thread, err := driver.Get(context.Background(), "T1")
			Expect(err).NotTo(HaveOccurred())
			Expect(thread.Messages).To(HaveLen(1))
		})
	})

	Context("when the provider times out", func() {
		It("reports a timeout error frame", func() {
			completer := &stubCompleter{
				err: &upstream.Error{Kind: upstream.KindTimeout, Err: context.DeadlineExceeded},
			}
			sess := runSession(completer, "T1", "hi")

			Expect(sess.State()).To(Equal(StateFailed))

			frames := readFrames(out.String())
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Data).To(Equal(`{"error":"provider request timed out"}`))
		})
	})

	Context("when the accumulated reply is blank", func() {
		It("skips the assistant append but still ends cleanly", func() {
			sess := runSession(&stubCompleter{deltas: []string{"  ", "\n"}}, "T1", "hi")

			Expect(sess.State()).To(Equal(StateCompleted))

			frames := readFrames(out.String())
			Expect(frames[len(frames)-1].Type).To(Equal("end"))

			thread, err := driver.Get(context.Background(), "T1")
			Expect(err).NotTo(HaveOccurred())
			Expect(thread.Messages).To(HaveLen(1))
			Expect(thread.Messages[0].Role).To(Equal(chat.RoleUser))
		})
	})

	Context("when the client disconnects mid-stream", func() {
		It("releases the provider promptly and persists no assistant message", func() {
			released := make(chan struct{})
			completer := &stubCompleter{
				deltas:   []string{"Hi"},
				block:    true,
				released: released,
			}

			sess := NewSession(storage.Serialized(driver), completer, nil, logger.Nop())
			done := make(chan struct{})
			go func() {
				defer close(done)
				sess.Run(context.Background(), sse.NewWriter(failingWriter{}), "T1", "hello")
			}()

			Eventually(done, time.Second).Should(BeClosed())
			Eventually(released, time.Second).Should(BeClosed())
			Expect(sess.State()).To(Equal(StateCancelled))

			thread, err := driver.Get(context.Background(), "T1")
			Expect(err).NotTo(HaveOccurred())
			Expect(thread.Messages).To(HaveLen(1))
			Expect(thread.Messages[0].Role).To(Equal(chat.RoleUser))
		})
	})

	Context("when persisting the assistant reply fails", func() {
		It("still sends the end frame and logs instead of erroring", func() {
			wrapped := &assistantAppendFailDriver{Driver: driver}
			sess := NewSession(wrapped, &stubCompleter{deltas: []string{"answer"}}, nil, logger.Nop())
			sess.Run(context.Background(), sse.NewWriter(&out), "T1", "hi")

			Expect(sess.State()).To(Equal(StateFailed))

			frames := readFrames(out.String())
			Expect(frames).To(HaveLen(2))
			Expect(frames[0].Data).To(Equal(`{"content":"answer"}`))
			// The client already has the reply, so the stream still ends
			// with a success frame.
			Expect(frames[1].Type).To(Equal("end"))
		})
	})
})

var _ = Describe("seedTitle", func() {
	It("uses the first line of the message", func() {
		Expect(seedTitle("first line\nsecond line")).To(Equal("first line"))
	})

	It("trims surrounding whitespace", func() {
		Expect(seedTitle("  hello  ")).To(Equal("hello"))
	})

	It("caps very long messages", func() {
		long := strings.Repeat("x", 500)
		Expect(seedTitle(long)).To(HaveLen(maxSeedTitleLen))
	})
})
