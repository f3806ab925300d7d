// Package messaging defines the outbound event contract used by the realtime relay.
package messaging

import (
	"context"
)

// Event is a storefront broadcast ready for the broker: a subject and its encoded body.
type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

// Publisher hands an Event to the broker. Implementations must honor ctx cancellation.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}
