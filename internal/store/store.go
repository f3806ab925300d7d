// Package store provides the persistence interfaces for products, carts and chat messages.
// Two implementations exist: PostgreSQL (pg_*.go) and in-memory (memory.go).
package store

import (
	"context"

	"github.com/google/uuid"
)

// ProductStore is an interface for product storage operations.
// It abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type ProductStore interface {
	// Find returns every product matching filter in store order.
	Find(ctx context.Context, filter ProductFilter) ([]Product, error)

	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindByCode retrieves a product by its unique code.
	// Returns ErrProductNotFound if no product has the code.
	FindByCode(ctx context.Context, code string) (*Product, error)

	// Create adds a new product. ID and timestamps are assigned by the store.
	// Returns ErrDuplicateCode if another product already uses the code.
	Create(ctx context.Context, product Product) (*Product, error)

	// Update passes the current product to mutate and saves the result. The product stays
	// locked from the read to the write, so a reservation cannot commit in between.
	// mutate must not call back into the store; its error aborts the update and is returned as is.
	// Returns ErrProductNotFound or ErrDuplicateCode.
	Update(ctx context.Context, id uuid.UUID, mutate func(p *Product) error) (*Product, error)

	// DeleteByID removes a product by its ID.
	// Returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// Paginate returns one page of products matching filter.
	Paginate(ctx context.Context, filter ProductFilter, req PageRequest) (*Page, error)

	// WithStockLock runs fn with exclusive write access to the listed products.
	// Changes made through the StockTx are applied only if fn returns nil.
	WithStockLock(ctx context.Context, ids []uuid.UUID, fn func(tx StockTx) error) error
}

// StockTx is the view of the product store available inside WithStockLock.
type StockTx interface {
	// FindByID reads the product as seen by the running reservation.
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// DecrementStock lowers stock by quantity.
	// Returns ErrStockConflict if that would make stock negative, ErrProductNotFound if the product is gone.
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (*Product, error)
}

// CartStore is an interface for cart storage operations.
type CartStore interface {
	// Create stores a new empty cart.
	Create(ctx context.Context) (*Cart, error)

	// FindByID returns the cart with its line items in order.
	// Returns ErrCartNotFound if no cart exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Cart, error)

	// UpdateProducts replaces the cart's line items.
	// Returns ErrCartNotFound if no cart exists with the given ID.
	UpdateProducts(ctx context.Context, id uuid.UUID, items []LineItem) (*Cart, error)

	// Checkout locks the cart, passes its line items to fn and empties the cart if fn succeeds.
	// Checkouts of one cart run one at a time. The ctx given to fn may carry the store's
	// transaction; product store calls made with it commit or roll back together with the cart.
	// Returns the items handed to fn, ErrCartNotFound, or the error of fn with the cart untouched.
	Checkout(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, items []LineItem) error) ([]LineItem, error)
}

// MessageStore is the append-only chat log.
type MessageStore interface {
	// Create appends a message. A zero Date is set to the current time.
	Create(ctx context.Context, msg Message) (*Message, error)

	// FindAllSortedByDate returns every message, oldest first.
	FindAllSortedByDate(ctx context.Context) ([]Message, error)
}
