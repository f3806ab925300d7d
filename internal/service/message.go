package service

import (
	"context"
	"log/slog"
	"strings"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/store"
)

// MessageService manages the chat log.
type MessageService interface {
	// Add validates and appends a message, then broadcasts new_message.
	Add(ctx context.Context, msg MessageCreateDto) (*store.Message, error)

	// FindAll returns every message, oldest first. It never returns nil.
	FindAll(ctx context.Context) ([]store.Message, error)
}

// MessageCreateDto represents the data transfer object for posting a chat message.
type MessageCreateDto struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

var _ MessageService = (*Messages)(nil)

// Messages implements MessageService.
type Messages struct {
	store       store.MessageStore
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewMessageService(messageStore store.MessageStore, broadcaster Broadcaster, logger *slog.Logger) *Messages {
	if broadcaster == nil {
		broadcaster = NopBroadcaster
	}
	return &Messages{
		store:       messageStore,
		broadcaster: broadcaster,
		logger:      logger.With("component", "message-service"),
	}
}

func (s *Messages) Add(ctx context.Context, dto MessageCreateDto) (*store.Message, error) {
	if strings.TrimSpace(dto.User) == "" || strings.TrimSpace(dto.Message) == "" {
		return nil, serrors.Validation("Please, complete user and message")
	}
	created, err := s.store.Create(ctx, store.Message{User: dto.User, Message: dto.Message})
	if err != nil {
		return nil, serrors.Internal(err, "failed to add message")
	}
	s.broadcaster.Broadcast(ctx, EventNewMessage, created)
	return created, nil
}

func (s *Messages) FindAll(ctx context.Context) ([]store.Message, error) {
	messages, err := s.store.FindAllSortedByDate(ctx)
	if err != nil {
		return nil, serrors.Internal(err, "failed to fetch messages")
	}
	if messages == nil {
		messages = []store.Message{}
	}
	return messages, nil
}
