package events

import (
	"sync"
)

// Sink consumes events as they occur. Implementations must be safe for
// concurrent calls and must not block for long: Emit dispatches synchronously
// on the caller's goroutine, so a slow sink slows the fetch path.
type Sink interface {
	Consume(evt Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(evt Event)

// Consume calls f(evt).
func (f SinkFunc) Consume(evt Event) { f(evt) }

// Emitter publishes individual events; Hub satisfies this interface so
// components can remain agnostic about how events are fanned out.
type Emitter interface {
	Emit(evt Event)
}

// Hub fans events out to registered sinks. The zero value is unusable; use
// NewHub. A nil *Hub is safe to emit on (events are dropped), which lets
// components treat the hub as optional.
type Hub struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewHub creates a Hub with the given initial sinks.
func NewHub(sinks ...Sink) *Hub {
	return &Hub{sinks: append([]Sink(nil), sinks...)}
}

// Subscribe registers an additional sink. Sinks cannot be removed; subscribe
// once during wiring.
func (h *Hub) Subscribe(s Sink) {
	if h == nil || s == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Emit stamps the event with an ID and timestamp (when unset) and dispatches
// it synchronously to every registered sink, in subscription order.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	evt = newEvent(evt)

	h.mu.RLock()
	sinks := h.sinks
	h.mu.RUnlock()

	for _, s := range sinks {
		s.Consume(evt)
	}
}
