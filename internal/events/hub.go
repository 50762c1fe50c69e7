// Package events fans out assistant activity (transcripts, turns,
// emergencies, state changes) to live subscribers and an optional broker.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an event.
type Kind string

const (
	KindTranscript Kind = "transcript"
	KindTurn       Kind = "turn"
	KindEmergency  Kind = "emergency"
	KindState      Kind = "state"
)

// Event is one assistant activity record.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Text      string         `json:"text,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event with a fresh ID and timestamp.
func New(kind Kind, text string, fields map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		Fields:    fields,
		Timestamp: time.Now(),
	}
}

// subscriberDepth is each subscriber's buffer. A subscriber that falls this
// far behind has events dropped; publishers never block.
const subscriberDepth = 64

// Hub is a non-blocking fan-out of events.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	sink func(Event)
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// SetSink installs an optional secondary consumer (e.g. an AMQP publisher)
// invoked for every published event. It must not block.
func (h *Hub) SetSink(fn func(Event)) {
	h.mu.Lock()
	h.sink = fn
	h.mu.Unlock()
}

// Subscribe registers a consumer. The returned cancel function must be
// called when the consumer goes away.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	ch := make(chan Event, subscriberDepth)
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking; a full
// subscriber loses this event.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	sink := h.sink
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}
