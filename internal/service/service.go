// Package service implements the storefront business logic on top of the store interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/go-playground/validator/v10"
)

// Realtime events pushed to every connected observer.
const (
	EventNewItem    = "new_item"
	EventNewMessage = "new_message"
)

// Broadcaster delivers an event to every connected observer. It must not block on slow observers.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any)
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(ctx context.Context, event string, payload any)

func (f BroadcasterFunc) Broadcast(ctx context.Context, event string, payload any) {
	f(ctx, event, payload)
}

// NopBroadcaster discards every event.
var NopBroadcaster Broadcaster = BroadcasterFunc(func(context.Context, string, any) {})

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validationError turns validator output into a ValidationError listing each failed rule.
func validationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		rules := make([]string, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			rules = append(rules, fmt.Sprintf("%s failed on rule: %s", fieldErr.Field(), fieldErr.Tag()))
		}
		return serrors.Validation("%s", strings.Join(rules, "; "))
	}
	return serrors.Validation("invalid input: %v", err)
}
