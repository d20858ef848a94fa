package sse

import (
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fragmentedReader yields its input in fixed-size chunks to simulate frame
// boundaries landing mid-event across network reads.
type fragmentedReader struct {
	data []byte
	pos  int
	size int
}

func (f *fragmentedReader) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	end := f.pos + f.size
	if end > len(f.data) {
		end = len(f.data)
	}
	n := copy(p, f.data[f.pos:end])
	f.pos += n
	return n, nil
}

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		Context("with standard SSE events", func() {
			It("parses a single event", func() {
				r := NewReader(strings.NewReader("data: hello world\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("hello world"))
				Expect(ev.Type).To(BeEmpty())
				Expect(ev.ID).To(BeEmpty())

				ev, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev).To(BeNil())
			})

			It("parses multiple events", func() {
				r := NewReader(strings.NewReader("data: first\n\ndata: second\n\n"))

				ev1, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.Data).To(Equal("first"))

				ev2, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.Data).To(Equal("second"))

				ev3, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev3).To(BeNil())
			})

			It("parses event type", func() {
				r := NewReader(strings.NewReader("event: error\ndata: {\"error\":\"boom\"}\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Type).To(Equal("error"))
				Expect(ev.Data).To(Equal("{\"error\":\"boom\"}"))
			})

			It("joins multiple data lines with newline", func() {
				r := NewReader(strings.NewReader("data: line one\ndata: line two\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("line one\nline two"))
			})

			It("skips comment lines", func() {
				r := NewReader(strings.NewReader(": keep-alive\ndata: payload\n\n"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("payload"))
			})

			It("yields a trailing event without a blank-line terminator", func() {
				r := NewReader(strings.NewReader("data: last"))

				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev.Data).To(Equal("last"))
			})
		})

		Context("with relay protocol frames", func() {
			It("parses a delta, error, end sequence", func() {
				input := "data: {\"content\":\"Hi\"}\n\n" +
					"data: {\"content\":\" there\"}\n\n" +
					"event: end\ndata: {\"done\": true}\n\n"
				r := NewReader(strings.NewReader(input))

				ev1, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.Type).To(BeEmpty())
				Expect(ev1.Data).To(Equal("{\"content\":\"Hi\"}"))

				ev2, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.Data).To(Equal("{\"content\":\" there\"}"))

				ev3, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev3.Type).To(Equal("end"))
				Expect(ev3.Data).To(Equal("{\"done\": true}"))
			})
		})

		Context("with frames split across reads", func() {
			It("reassembles an event whose boundary lands mid-line", func() {
				input := "data: {\"content\":\"a long delta payload\"}\n\nevent: end\ndata: {\"done\": true}\n\n"
				r := NewReader(&fragmentedReader{data: []byte(input), size: 7})

				ev1, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev1.Data).To(Equal("{\"content\":\"a long delta payload\"}"))

				ev2, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(ev2.Type).To(Equal("end"))
			})
		})
	})
})
