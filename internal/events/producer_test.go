package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", Ordered, func() {
	Context("write", func() {
		It("writes successfully", func() {
			w := newTestWriter()
			kp := NewEventProducer(w, WithOutputTopic("jobs"))

			err := kp.Write(context.TODO(), JobSubmittedKind, bytes.NewReader([]byte(`"msg1"`)))
			Expect(err).To(BeNil())
			err = kp.Write(context.TODO(), JobFinishedKind, bytes.NewReader([]byte(`"msg2"`)))
			Expect(err).To(BeNil())

			Eventually(w.Len).Should(Equal(2))
			msgs := w.Events()
			Expect(msgs[0].Type()).To(Equal(JobSubmittedKind))
			Expect(msgs[1].Type()).To(Equal(JobFinishedKind))
			Expect(w.Topics()).To(HaveEach("jobs"))

			Expect(kp.Close()).To(Succeed())
		})

		It("emits json bodies", func() {
			w := newTestWriter()
			kp := NewEventProducer(w, WithSource("tests"))

			Expect(kp.Emit(context.TODO(), JobCancelledKind, JobEvent{JobID: "id-1", Owner: "batman", State: "cancelled"})).To(Succeed())
			Eventually(w.Len).Should(Equal(1))

			e := w.Events()[0]
			Expect(e.Source()).To(Equal("tests"))

			var body JobEvent
			Expect(json.Unmarshal(e.Data(), &body)).To(Succeed())
			Expect(body.JobID).To(Equal("id-1"))
			Expect(body.State).To(Equal("cancelled"))

			Expect(kp.Close()).To(Succeed())
		})

		It("flushes buffered events on close", func() {
			w := newTestWriter()
			kp := NewEventProducer(w)

			for i := 0; i < 50; i++ {
				Expect(kp.Emit(context.TODO(), JobStartedKind, JobEvent{JobID: "id"})).To(Succeed())
			}
			Expect(kp.Close()).To(Succeed())
			Expect(w.Len()).To(Equal(50))
			Expect(w.closed).To(BeTrue())

			// closing twice is harmless
			Expect(kp.Close()).To(Succeed())
		})

		It("keeps going when the writer fails", func() {
			w := newTestWriter()
			w.err = errors.New("broker down")
			kp := NewEventProducer(w)

			Expect(kp.Emit(context.TODO(), JobStartedKind, JobEvent{JobID: "id"})).To(Succeed())
			Expect(kp.Emit(context.TODO(), JobStartedKind, JobEvent{JobID: "id"})).To(Succeed())
			Eventually(w.Len).Should(Equal(2))

			Expect(kp.Close()).To(Succeed())
		})
	})
})

type testwriter struct {
	mu       sync.Mutex
	messages []cloudevents.Event
	topics   []string
	err      error
	closed   bool
}

func newTestWriter() *testwriter {
	return &testwriter{}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, e)
	t.topics = append(t.topics, topic)
	return t.err
}

func (t *testwriter) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *testwriter) Events() []cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cloudevents.Event{}, t.messages...)
}

func (t *testwriter) Topics() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.topics...)
}

func (t *testwriter) Close(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
