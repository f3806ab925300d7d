package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/abgdnv/storefront/internal/store"
	"github.com/google/uuid"
)

var errStore = errors.New("store error")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordedEvent struct {
	event   string
	payload any
}

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{event: event, payload: payload})
}

func (b *recordingBroadcaster) recorded() []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedEvent(nil), b.events...)
}

// failingProductStore is a ProductStore whose every call fails with err.
type failingProductStore struct {
	err error
}

func (m *failingProductStore) Find(context.Context, store.ProductFilter) ([]store.Product, error) {
	return nil, m.err
}

func (m *failingProductStore) FindByID(context.Context, uuid.UUID) (*store.Product, error) {
	return nil, m.err
}

func (m *failingProductStore) FindByCode(context.Context, string) (*store.Product, error) {
	return nil, m.err
}

func (m *failingProductStore) Create(context.Context, store.Product) (*store.Product, error) {
	return nil, m.err
}

func (m *failingProductStore) Update(context.Context, uuid.UUID, func(p *store.Product) error) (*store.Product, error) {
	return nil, m.err
}

func (m *failingProductStore) DeleteByID(context.Context, uuid.UUID) error {
	return m.err
}

func (m *failingProductStore) Paginate(context.Context, store.ProductFilter, store.PageRequest) (*store.Page, error) {
	return nil, m.err
}

func (m *failingProductStore) WithStockLock(context.Context, []uuid.UUID, func(tx store.StockTx) error) error {
	return m.err
}
