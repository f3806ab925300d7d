package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// inboundMsg is the part of jetstream.Msg the subscriber needs.
type inboundMsg interface {
	Data() []byte
	Subject() string
	Ack() error
	Term() error
}

// Subscriber replays realtime events relayed by other instances to the clients of
// this instance. Events carrying its own origin were already delivered locally.
type Subscriber struct {
	local  service.Broadcaster
	origin string
	logger *slog.Logger
}

func NewSubscriber(local service.Broadcaster, origin string, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		local:  local,
		origin: origin,
		logger: logger.With("component", "realtime-subscriber"),
	}
}

// ConsumerName is the per-instance consumer; every instance must see every event.
func (s *Subscriber) ConsumerName() string {
	return "storefront-" + s.origin
}

// Run consumes subjectPrefix.> from stream until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, js jetstream.JetStream, stream, subjectPrefix string, cfg config.SubscriberConfig) error {
	consumer, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Name:              s.ConsumerName(),
		FilterSubject:     subjectPrefix + ".>",
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: cfg.InactiveThreshold,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", s.ConsumerName(), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := consumer.Fetch(cfg.Batch, jetstream.FetchMaxWait(cfg.Timeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			s.logger.ErrorContext(ctx, "Failed to fetch realtime events", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Interval):
			}
			continue
		}
		for msg := range batch.Messages() {
			s.handleMessage(ctx, msg)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && ctx.Err() == nil {
			s.logger.WarnContext(ctx, "Realtime event batch ended with error", "error", err)
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, msg inboundMsg) {
	var evt events.InboundRealtimeEvent
	if err := json.Unmarshal(msg.Data(), &evt); err != nil {
		s.logger.ErrorContext(ctx, "Failed to decode realtime event", "subject", msg.Subject(), "error", err)
		// a malformed event never becomes valid on redelivery
		if err := msg.Term(); err != nil {
			s.logger.ErrorContext(ctx, "Failed to terminate message", "error", err)
		}
		return
	}

	switch {
	case evt.Origin == s.origin:
	case evt.Name != service.EventNewItem && evt.Name != service.EventNewMessage:
		s.logger.WarnContext(ctx, "Ignoring unknown realtime event", "event", evt.Name, "subject", msg.Subject())
	default:
		s.local.Broadcast(ctx, evt.Name, evt.Data)
		s.logger.DebugContext(ctx, "Realtime event replayed", "event", evt.Name, "origin", evt.Origin)
	}

	if err := msg.Ack(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to ack message", "error", err)
	}
}
