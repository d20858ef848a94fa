package sse

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = &bytes.Buffer{}
	})

	It("writes a default-type frame as a bare data line", func() {
		w := NewWriter(buf)
		err := w.WriteEvent(Event{Data: "{\"content\":\"Hi\"}"})
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("data: {\"content\":\"Hi\"}\n\n"))
	})

	It("writes the event type line before the data line", func() {
		w := NewWriter(buf)
		err := w.WriteEvent(Event{Type: "end", Data: "{\"done\": true}"})
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("event: end\ndata: {\"done\": true}\n\n"))
	})

	It("splits multi-line data across data lines", func() {
		w := NewWriter(buf)
		err := w.WriteEvent(Event{Data: "one\ntwo"})
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(Equal("data: one\ndata: two\n\n"))
	})

	It("round-trips through the Reader", func() {
		w := NewWriter(buf)
		Expect(w.WriteEvent(Event{Data: "{\"content\":\"x\"}"})).To(Succeed())
		Expect(w.WriteEvent(Event{Type: "error", Data: "{\"error\":\"boom\"}"})).To(Succeed())

		r := NewReader(buf)
		ev1, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev1.Data).To(Equal("{\"content\":\"x\"}"))

		ev2, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev2.Type).To(Equal("error"))
	})
})
