package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/errors"
	"github.com/google/uuid"
)

// MemoryProductStore implements ProductStore using an in-memory map.
// Insertion order is the default order of Find and Paginate.
type MemoryProductStore struct {
	mu       sync.RWMutex
	products map[uuid.UUID]Product
	order    []uuid.UUID
	now      func() time.Time
}

var _ ProductStore = (*MemoryProductStore)(nil)

func NewMemoryProductStore() *MemoryProductStore {
	return &MemoryProductStore{
		products: make(map[uuid.UUID]Product),
		now:      time.Now,
	}
}

func (s *MemoryProductStore) Find(_ context.Context, filter ProductFilter) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filtered(filter), nil
}

// filtered must be called with the lock held.
func (s *MemoryProductStore) filtered(filter ProductFilter) []Product {
	list := make([]Product, 0, len(s.order))
	for _, id := range s.order {
		p := s.products[id]
		if filter.Match(p) {
			list = append(list, cloneProduct(p))
		}
	}
	return list
}

func (s *MemoryProductStore) FindByID(_ context.Context, id uuid.UUID) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, errors.ErrProductNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

func (s *MemoryProductStore) FindByCode(_ context.Context, code string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Code == code {
			p = cloneProduct(p)
			return &p, nil
		}
	}
	return nil, errors.ErrProductNotFound
}

func (s *MemoryProductStore) Create(_ context.Context, product Product) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codeTaken(product.Code, uuid.Nil) {
		return nil, errors.ErrDuplicateCode
	}
	now := s.now()
	product.ID = uuid.New()
	product.CreatedAt = now
	product.UpdatedAt = now
	product = cloneProduct(product)
	s.products[product.ID] = product
	s.order = append(s.order, product.ID)

	created := cloneProduct(product)
	return &created, nil
}

// Update runs mutate under the store's write lock, the same lock WithStockLock holds.
func (s *MemoryProductStore) Update(_ context.Context, id uuid.UUID, mutate func(p *Product) error) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[id]
	if !ok {
		return nil, errors.ErrProductNotFound
	}
	product := cloneProduct(current)
	if err := mutate(&product); err != nil {
		return nil, err
	}
	product.ID = id
	if s.codeTaken(product.Code, id) {
		return nil, errors.ErrDuplicateCode
	}
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = s.now()
	product = cloneProduct(product)
	s.products[id] = product

	updated := cloneProduct(product)
	return &updated, nil
}

func (s *MemoryProductStore) DeleteByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return errors.ErrProductNotFound
	}
	delete(s.products, id)
	s.order = slices.DeleteFunc(s.order, func(v uuid.UUID) bool { return v == id })
	return nil
}

func (s *MemoryProductStore) Paginate(_ context.Context, filter ProductFilter, req PageRequest) (*Page, error) {
	req = req.Normalized()

	s.mu.RLock()
	list := s.filtered(filter)
	s.mu.RUnlock()

	switch req.Sort {
	case SortAsc:
		slices.SortStableFunc(list, func(a, b Product) int { return cmp.Compare(a.Price, b.Price) })
	case SortDesc:
		slices.SortStableFunc(list, func(a, b Product) int { return cmp.Compare(b.Price, a.Price) })
	}

	total := len(list)
	start := min(req.Offset(), total)
	end := min(start+req.Limit, total)
	return NewPage(list[start:end], total, req), nil
}

// WithStockLock holds the store's write lock for the whole of fn. Writes are staged
// and applied only when fn succeeds.
func (s *MemoryProductStore) WithStockLock(_ context.Context, _ []uuid.UUID, fn func(tx StockTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryStockTx{store: s, staged: make(map[uuid.UUID]Product)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, p := range tx.staged {
		s.products[id] = p
	}
	return nil
}

// codeTaken must be called with the lock held.
func (s *MemoryProductStore) codeTaken(code string, except uuid.UUID) bool {
	for id, p := range s.products {
		if id != except && p.Code == code {
			return true
		}
	}
	return false
}

type memoryStockTx struct {
	store  *MemoryProductStore
	staged map[uuid.UUID]Product
}

func (tx *memoryStockTx) current(id uuid.UUID) (Product, bool) {
	if p, ok := tx.staged[id]; ok {
		return p, true
	}
	p, ok := tx.store.products[id]
	return p, ok
}

func (tx *memoryStockTx) FindByID(_ context.Context, id uuid.UUID) (*Product, error) {
	p, ok := tx.current(id)
	if !ok {
		return nil, errors.ErrProductNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

func (tx *memoryStockTx) DecrementStock(_ context.Context, id uuid.UUID, quantity int) (*Product, error) {
	p, ok := tx.current(id)
	if !ok {
		return nil, errors.ErrProductNotFound
	}
	if p.Stock < quantity {
		return nil, errors.ErrStockConflict
	}
	p.Stock -= quantity
	p.UpdatedAt = tx.store.now()
	tx.staged[id] = p

	out := cloneProduct(p)
	return &out, nil
}

func cloneProduct(p Product) Product {
	p.Thumbnails = slices.Clone(p.Thumbnails)
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}
	return p
}

// MemoryCartStore implements CartStore using an in-memory map.
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[uuid.UUID]Cart
	now   func() time.Time
}

var _ CartStore = (*MemoryCartStore)(nil)

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{
		carts: make(map[uuid.UUID]Cart),
		now:   time.Now,
	}
}

func (s *MemoryCartStore) Create(_ context.Context) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cart := Cart{ID: uuid.New(), Products: []LineItem{}, CreatedAt: now, UpdatedAt: now}
	s.carts[cart.ID] = cart
	out := cloneCart(cart)
	return &out, nil
}

func (s *MemoryCartStore) FindByID(_ context.Context, id uuid.UUID) (*Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[id]
	if !ok {
		return nil, errors.ErrCartNotFound
	}
	out := cloneCart(cart)
	return &out, nil
}

func (s *MemoryCartStore) UpdateProducts(_ context.Context, id uuid.UUID, items []LineItem) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[id]
	if !ok {
		return nil, errors.ErrCartNotFound
	}
	cart.Products = slices.Clone(items)
	cart.UpdatedAt = s.now()
	s.carts[id] = cart
	out := cloneCart(cart)
	return &out, nil
}

// Checkout holds the store's write lock while fn runs.
func (s *MemoryCartStore) Checkout(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, items []LineItem) error) ([]LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[id]
	if !ok {
		return nil, errors.ErrCartNotFound
	}
	items := cloneCart(cart).Products
	if err := fn(ctx, slices.Clone(items)); err != nil {
		return nil, err
	}
	cart.Products = []LineItem{}
	cart.UpdatedAt = s.now()
	s.carts[id] = cart
	return items, nil
}

func cloneCart(c Cart) Cart {
	c.Products = slices.Clone(c.Products)
	if c.Products == nil {
		c.Products = []LineItem{}
	}
	return c
}

// MemoryMessageStore implements MessageStore as an append-only slice.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

var _ MessageStore = (*MemoryMessageStore)(nil)

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{now: time.Now}
}

func (s *MemoryMessageStore) Create(_ context.Context, msg Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.New()
	if msg.Date.IsZero() {
		msg.Date = s.now()
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *MemoryMessageStore) FindAllSortedByDate(_ context.Context) ([]Message, error) {
	s.mu.RLock()
	list := slices.Clone(s.messages)
	s.mu.RUnlock()

	if list == nil {
		list = []Message{}
	}
	// stable: equal dates keep insertion order
	slices.SortStableFunc(list, func(a, b Message) int { return a.Date.Compare(b.Date) })
	return list, nil
}
