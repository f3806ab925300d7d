// Package events holds the domain events relayed to the message broker.
package events

import (
	"encoding/json"
	"time"
)

// RealtimeEvent mirrors one WebSocket broadcast onto the broker so that
// other consumers see the same new_item / new_message stream.
// Origin identifies the publishing instance.
type RealtimeEvent struct {
	Prefix     string    `json:"-"`
	Origin     string    `json:"origin"`
	Name       string    `json:"event"`
	Data       any       `json:"data"`
	OccurredAt time.Time `json:"occurred_at"`
}

// InboundRealtimeEvent is a RealtimeEvent as read back from the broker.
type InboundRealtimeEvent struct {
	Origin     string          `json:"origin"`
	Name       string          `json:"event"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (e RealtimeEvent) Subject() string {
	return e.Prefix + "." + e.Name
}

func (e RealtimeEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
