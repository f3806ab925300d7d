package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/idempotency"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CartService defines the methods for managing shopping carts.
type CartService interface {
	Create(ctx context.Context) (*store.Cart, error)

	// FindByID returns NotFoundError if no cart exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*store.Cart, error)

	// AddProduct adds one unit of an existing product, incrementing its line item if present.
	AddProduct(ctx context.Context, cartID, productID uuid.UUID) (*store.Cart, error)

	// RemoveProduct drops the product's line item. Returns NotFoundError if the cart does not hold it.
	RemoveProduct(ctx context.Context, cartID, productID uuid.UUID) (*store.Cart, error)

	// Replace overwrites the cart's line items.
	Replace(ctx context.Context, cartID uuid.UUID, items []store.LineItem) (*store.Cart, error)

	// UpdateQuantity sets the quantity of an existing line item.
	UpdateQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) (*store.Cart, error)

	// Clear removes every line item.
	Clear(ctx context.Context, cartID uuid.UUID) (*store.Cart, error)

	// Purchase reserves stock for the whole cart and empties it on success.
	// A non-empty idempotencyKey may be used once per cart; a replay is a ConflictError.
	Purchase(ctx context.Context, cartID uuid.UUID, idempotencyKey string) (*Receipt, error)
}

// Receipt lists what a successful purchase reserved.
type Receipt struct {
	CartID uuid.UUID        `json:"cartId"`
	Items  []store.LineItem `json:"items"`
}

type quantityUpdate struct {
	Quantity int `validate:"min=1"`
}

var _ CartService = (*Carts)(nil)

// Carts implements CartService.
type Carts struct {
	carts       store.CartStore
	products    store.ProductStore
	stock       ProductService
	idempotency idempotency.Store
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewCartService creates a CartService. Stock reservation is delegated to stock.
func NewCartService(carts store.CartStore, products store.ProductStore, stock ProductService, keys idempotency.Store, logger *slog.Logger) *Carts {
	return &Carts{
		carts:       carts,
		products:    products,
		stock:       stock,
		idempotency: keys,
		validate:    newValidator(),
		logger:      logger.With("component", "cart-service"),
	}
}

func (s *Carts) Create(ctx context.Context) (*store.Cart, error) {
	cart, err := s.carts.Create(ctx)
	if err != nil {
		return nil, serrors.Internal(err, "failed to create cart")
	}
	return cart, nil
}

func (s *Carts) FindByID(ctx context.Context, id uuid.UUID) (*store.Cart, error) {
	cart, err := s.carts.FindByID(ctx, id)
	if err != nil {
		return nil, cartError(err, id)
	}
	return cart, nil
}

func (s *Carts) AddProduct(ctx context.Context, cartID, productID uuid.UUID) (*store.Cart, error) {
	cart, err := s.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if errors.Is(err, serrors.ErrProductNotFound) {
			return nil, serrors.NotFound("Product with id: %s not found.", productID)
		}
		return nil, serrors.Internal(err, "failed to fetch product %s", productID)
	}

	items := cart.Products
	if i := indexOf(items, productID); i >= 0 {
		items[i].Quantity++
	} else {
		items = append(items, store.LineItem{ProductID: productID, Quantity: 1})
	}
	return s.save(ctx, cartID, items)
}

func (s *Carts) RemoveProduct(ctx context.Context, cartID, productID uuid.UUID) (*store.Cart, error) {
	cart, err := s.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	i := indexOf(cart.Products, productID)
	if i < 0 {
		return nil, serrors.NotFound("Product with id: %s is not in cart %s.", productID, cartID)
	}
	return s.save(ctx, cartID, slices.Delete(cart.Products, i, i+1))
}

func (s *Carts) Replace(ctx context.Context, cartID uuid.UUID, items []store.LineItem) (*store.Cart, error) {
	if err := s.validate.Struct(reservation{Items: items}); err != nil {
		return nil, validationError(err)
	}
	return s.save(ctx, cartID, items)
}

func (s *Carts) UpdateQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) (*store.Cart, error) {
	if err := s.validate.Struct(quantityUpdate{Quantity: quantity}); err != nil {
		return nil, validationError(err)
	}
	cart, err := s.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	i := indexOf(cart.Products, productID)
	if i < 0 {
		return nil, serrors.NotFound("Product with id: %s is not in cart %s.", productID, cartID)
	}
	cart.Products[i].Quantity = quantity
	return s.save(ctx, cartID, cart.Products)
}

func (s *Carts) Clear(ctx context.Context, cartID uuid.UUID) (*store.Cart, error) {
	return s.save(ctx, cartID, nil)
}

func (s *Carts) Purchase(ctx context.Context, cartID uuid.UUID, idempotencyKey string) (*Receipt, error) {
	var claimedKey string
	if idempotencyKey != "" {
		key := "purchase:" + cartID.String() + ":" + idempotencyKey
		claimed, err := s.idempotency.Claim(ctx, key)
		if err != nil {
			return nil, serrors.Internal(err, "failed to claim idempotency key")
		}
		if !claimed {
			return nil, serrors.Conflict("purchase with idempotency key %s was already submitted", idempotencyKey)
		}
		claimedKey = key
	}

	receipt, err := s.purchase(ctx, cartID)
	if err != nil && claimedKey != "" {
		// a failed attempt may be retried with the same key
		if relErr := s.idempotency.Release(ctx, claimedKey); relErr != nil {
			s.logger.WarnContext(ctx, "Failed to release idempotency key", "key", claimedKey, "error", relErr)
		}
	}
	return receipt, err
}

// purchase reserves stock while the cart is locked, so one cart is never bought twice.
func (s *Carts) purchase(ctx context.Context, cartID uuid.UUID) (*Receipt, error) {
	items, err := s.carts.Checkout(ctx, cartID, func(ctx context.Context, items []store.LineItem) error {
		if len(items) == 0 {
			return serrors.Validation("cart %s is empty", cartID)
		}
		_, err := s.stock.ReduceStock(ctx, items)
		return err
	})
	if err != nil {
		var classified *serrors.Error
		if errors.As(err, &classified) {
			return nil, err
		}
		return nil, cartError(err, cartID)
	}
	s.logger.InfoContext(ctx, "Cart purchased", "cart_id", cartID, "items", len(items))
	return &Receipt{CartID: cartID, Items: items}, nil
}

func (s *Carts) save(ctx context.Context, cartID uuid.UUID, items []store.LineItem) (*store.Cart, error) {
	cart, err := s.carts.UpdateProducts(ctx, cartID, items)
	if err != nil {
		return nil, cartError(err, cartID)
	}
	return cart, nil
}

func cartError(err error, id uuid.UUID) error {
	if errors.Is(err, serrors.ErrCartNotFound) {
		return serrors.NotFound("Cart with id: %s not found.", id)
	}
	return serrors.Internal(err, "failed to access cart %s", id)
}

func indexOf(items []store.LineItem, productID uuid.UUID) int {
	return slices.IndexFunc(items, func(item store.LineItem) bool { return item.ProductID == productID })
}
