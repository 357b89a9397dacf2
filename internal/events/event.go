// Package events defines the state-change event feed emitted by the fetch
// orchestration layer and the hub that fans events out to registered sinks.
//
// The hub dispatches synchronously at the point of occurrence; transports
// (WebSocket relay, log aggregation, metrics) subscribe as sinks and decide
// for themselves whether to buffer or forward.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type denotes the kind of state change an Event represents.
type Type string

// Supported event types.
const (
	TypeBreakerTransition Type = "breaker:transition"
	TypePoolConnCreated   Type = "pool:connection-created"
	TypePoolConnRemoved   Type = "pool:connection-removed"
	TypeCacheEvicted      Type = "cache:evicted"
	TypePerfSnapshot      Type = "performance:snapshot"
)

// Event captures a single state change in the fetch layer.
type Event struct {
	// ID uniquely identifies the event (UUID string form).
	ID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Type denotes which state change occurred.
	Type Type
	// Source optionally scopes the event to an upstream source key.
	Source string
	// From and To carry breaker state names for TypeBreakerTransition.
	From string
	To   string
	// Origin carries the connection origin for pool events.
	Origin string
	// Key carries the cache key for TypeCacheEvicted.
	Key string
	// Detail lets emitters attach low-volume context (eviction reason, error text).
	Detail string
}

// newEvent stamps an Event with an ID and timestamp.
func newEvent(evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	return evt
}
