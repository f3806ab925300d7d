package service

import (
	"context"
	"testing"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MessageService_Add(t *testing.T) {
	testCases := []struct {
		name        string
		dto         MessageCreateDto
		expectError error
	}{
		{name: "Success - message stored", dto: MessageCreateDto{User: "ana@example.com", Message: "hello"}},
		{name: "Error - missing user", dto: MessageCreateDto{Message: "hello"}, expectError: serrors.ErrValidation},
		{name: "Error - missing message", dto: MessageCreateDto{User: "ana@example.com"}, expectError: serrors.ErrValidation},
		{name: "Error - blank message", dto: MessageCreateDto{User: "ana@example.com", Message: "   "}, expectError: serrors.ErrValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			broadcaster := &recordingBroadcaster{}
			svc := NewMessageService(store.NewMemoryMessageStore(), broadcaster, discardLogger())
			// when
			created, err := svc.Add(context.Background(), tc.dto)
			// then
			if tc.expectError != nil {
				require.ErrorIs(t, err, tc.expectError)
				assert.Equal(t, "Please, complete user and message", serrors.Message(err))
				assert.Empty(t, broadcaster.recorded())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.dto.User, created.User)
			assert.False(t, created.Date.IsZero())

			events := broadcaster.recorded()
			require.Len(t, events, 1)
			assert.Equal(t, EventNewMessage, events[0].event)
			assert.Equal(t, created, events[0].payload)
		})
	}
}

func Test_MessageService_FindAll(t *testing.T) {
	ctx := context.Background()
	svc := NewMessageService(store.NewMemoryMessageStore(), nil, discardLogger())

	empty, err := svc.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.Message{}, empty)

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.Add(ctx, MessageCreateDto{User: "ana", Message: text})
		require.NoError(t, err)
	}

	list, err := svc.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "one", list[0].Message)
	assert.Equal(t, "three", list[2].Message)
}
