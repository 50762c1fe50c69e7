package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	ev := New(KindTranscript, "hello", nil)
	require.NotEmpty(t, ev.ID)
	h.Publish(ev)

	got1 := <-ch1
	got2 := <-ch2
	assert.Equal(t, ev.ID, got1.ID)
	assert.Equal(t, ev.ID, got2.ID)
	assert.Equal(t, KindTranscript, got1.Kind)
}

func TestHub_SlowSubscriberNeverBlocksPublisher(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	// Overfill the subscriber buffer; Publish must not block.
	for i := 0; i < subscriberDepth*2; i++ {
		h.Publish(New(KindState, "tick", nil))
	}
	assert.Len(t, ch, subscriberDepth)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	h.Publish(New(KindTurn, "x", nil))
}

func TestHub_Sink(t *testing.T) {
	h := NewHub()
	var seen []Event
	h.SetSink(func(ev Event) { seen = append(seen, ev) })

	h.Publish(New(KindEmergency, "help", map[string]any{"keyword": "sos"}))
	require.Len(t, seen, 1)
	assert.Equal(t, "sos", seen[0].Fields["keyword"])
}
