package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
)

// Relay republishes broadcasts to the message broker in the background.
type Relay struct {
	publisher messaging.Publisher
	prefix    string
	origin    string
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ service.Broadcaster = (*Relay)(nil)

// NewRelay publishes each event to "<prefix>.<event>" with a per-publish timeout.
// origin tags the events so a Subscriber on the same instance can skip them.
func NewRelay(publisher messaging.Publisher, prefix, origin string, timeout time.Duration, logger *slog.Logger) *Relay {
	return &Relay{
		publisher: publisher,
		prefix:    prefix,
		origin:    origin,
		timeout:   timeout,
		logger:    logger.With("component", "realtime-relay"),
		now:       time.Now,
	}
}

func (r *Relay) Broadcast(ctx context.Context, event string, payload any) {
	evt := events.RealtimeEvent{Prefix: r.prefix, Origin: r.origin, Name: event, Data: payload, OccurredAt: r.now().UTC()}
	// detached from the request so a finished request does not cancel the publish
	pubCtx := context.WithoutCancel(ctx)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.DebugContext(ctx, "Relay closed, event dropped", "subject", evt.Subject())
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(pubCtx, r.timeout)
		defer cancel()
		if err := r.publisher.Publish(ctx, evt); err != nil {
			r.logger.WarnContext(ctx, "Failed to relay event", "subject", evt.Subject(), "error", err)
		}
	}()
}

// Close stops accepting broadcasts and blocks until every in-flight publish has finished.
// Broadcasts after Close are dropped.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

// Fanout delivers each broadcast to every member in order.
type Fanout []service.Broadcaster

func (f Fanout) Broadcast(ctx context.Context, event string, payload any) {
	for _, b := range f {
		b.Broadcast(ctx, event, payload)
	}
}
