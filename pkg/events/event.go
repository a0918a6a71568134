// Package events defines the messages published on the NATS bus.
package events

import "time"

// Event is one message on the bus. ID is stable across publish retries so
// the broker can drop duplicates.
type Event interface {
	ID() string
	// EventType is the subject suffix, e.g. "document.completed".
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

type BaseEvent struct {
	EventID    string
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) ID() string                      { return e.EventID }
func (e BaseEvent) EventType() string               { return e.Type }
func (e BaseEvent) Payload() map[string]interface{} { return e.Data }
func (e BaseEvent) Timestamp() time.Time            { return e.OccurredAt }
