package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/idempotency"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cartFixture struct {
	carts    *Carts
	products *Products
	keys     *idempotency.MemoryStore
}

func newCartFixture(t *testing.T) cartFixture {
	t.Helper()
	productStore := store.NewMemoryProductStore()
	products := NewProductService(productStore, nil, testBaseURL, discardLogger())
	keys := idempotency.NewMemoryStore(time.Hour)
	carts := NewCartService(store.NewMemoryCartStore(), productStore, products, keys, discardLogger())
	return cartFixture{carts: carts, products: products, keys: keys}
}

func (f cartFixture) newCart(t *testing.T) uuid.UUID {
	t.Helper()
	cart, err := f.carts.Create(context.Background())
	require.NoError(t, err)
	return cart.ID
}

func Test_CartService_AddProduct(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	cartID := f.newCart(t)
	a := mustCreate(t, f.products, productDto("A", 1, 5))
	b := mustCreate(t, f.products, productDto("B", 1, 5))

	_, err := f.carts.AddProduct(ctx, cartID, a.ID)
	require.NoError(t, err)
	_, err = f.carts.AddProduct(ctx, cartID, b.ID)
	require.NoError(t, err)
	cart, err := f.carts.AddProduct(ctx, cartID, a.ID)
	require.NoError(t, err)

	assert.Equal(t, []store.LineItem{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 1}}, cart.Products)

	testCases := []struct {
		name        string
		cartID      uuid.UUID
		productID   uuid.UUID
		expectError error
	}{
		{name: "Error - cart missing", cartID: uuid.New(), productID: a.ID, expectError: serrors.ErrNotFound},
		{name: "Error - product missing", cartID: cartID, productID: uuid.New(), expectError: serrors.ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.carts.AddProduct(ctx, tc.cartID, tc.productID)
			assert.ErrorIs(t, err, tc.expectError)
		})
	}
}

func Test_CartService_RemoveAndUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	cartID := f.newCart(t)
	a, b := uuid.New(), uuid.New()
	_, err := f.carts.Replace(ctx, cartID, []store.LineItem{{ProductID: a, Quantity: 1}, {ProductID: b, Quantity: 4}})
	require.NoError(t, err)

	cart, err := f.carts.UpdateQuantity(ctx, cartID, b, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, cart.Products[1].Quantity)

	cart, err = f.carts.RemoveProduct(ctx, cartID, a)
	require.NoError(t, err)
	assert.Equal(t, []store.LineItem{{ProductID: b, Quantity: 7}}, cart.Products)

	_, err = f.carts.RemoveProduct(ctx, cartID, a)
	assert.ErrorIs(t, err, serrors.ErrNotFound)
	_, err = f.carts.UpdateQuantity(ctx, cartID, a, 2)
	assert.ErrorIs(t, err, serrors.ErrNotFound)
	_, err = f.carts.UpdateQuantity(ctx, cartID, b, 0)
	assert.ErrorIs(t, err, serrors.ErrValidation)

	cart, err = f.carts.Clear(ctx, cartID)
	require.NoError(t, err)
	assert.Empty(t, cart.Products)
}

func Test_CartService_Replace(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	cartID := f.newCart(t)

	testCases := []struct {
		name        string
		cartID      uuid.UUID
		items       []store.LineItem
		expectError error
	}{
		{name: "Success - items stored in order", cartID: cartID, items: []store.LineItem{{ProductID: uuid.New(), Quantity: 2}, {ProductID: uuid.New(), Quantity: 1}}},
		{name: "Success - empty list", cartID: cartID, items: []store.LineItem{}},
		{name: "Error - zero quantity", cartID: cartID, items: []store.LineItem{{ProductID: uuid.New(), Quantity: 0}}, expectError: serrors.ErrValidation},
		{name: "Error - missing product id", cartID: cartID, items: []store.LineItem{{Quantity: 1}}, expectError: serrors.ErrValidation},
		{name: "Error - cart missing", cartID: uuid.New(), items: []store.LineItem{}, expectError: serrors.ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cart, err := f.carts.Replace(ctx, tc.cartID, tc.items)
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.items, cart.Products)
		})
	}
}

func Test_CartService_Purchase(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - stock reserved and cart cleared", func(t *testing.T) {
		f := newCartFixture(t)
		cartID := f.newCart(t)
		a := mustCreate(t, f.products, productDto("A", 1, 3))
		items := []store.LineItem{{ProductID: a.ID, Quantity: 2}}
		_, err := f.carts.Replace(ctx, cartID, items)
		require.NoError(t, err)

		receipt, err := f.carts.Purchase(ctx, cartID, "")

		require.NoError(t, err)
		assert.Equal(t, &Receipt{CartID: cartID, Items: items}, receipt)
		assertStock(t, f.products, a.ID, 1)
		cart, err := f.carts.FindByID(ctx, cartID)
		require.NoError(t, err)
		assert.Empty(t, cart.Products)
	})

	t.Run("Refused - insufficient stock keeps the cart", func(t *testing.T) {
		f := newCartFixture(t)
		cartID := f.newCart(t)
		a := mustCreate(t, f.products, productDto("A", 1, 1))
		_, err := f.carts.Replace(ctx, cartID, []store.LineItem{{ProductID: a.ID, Quantity: 2}})
		require.NoError(t, err)

		_, err = f.carts.Purchase(ctx, cartID, "key-1")

		require.ErrorIs(t, err, serrors.ErrInsufficientStock)
		cart, err := f.carts.FindByID(ctx, cartID)
		require.NoError(t, err)
		assert.Len(t, cart.Products, 1)
		assertStock(t, f.products, a.ID, 1)

		// the failed attempt released its key
		claimed, err := f.keys.Claim(ctx, "purchase:"+cartID.String()+":key-1")
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("Error - replayed idempotency key", func(t *testing.T) {
		f := newCartFixture(t)
		cartID := f.newCart(t)
		a := mustCreate(t, f.products, productDto("A", 1, 10))
		_, err := f.carts.Replace(ctx, cartID, []store.LineItem{{ProductID: a.ID, Quantity: 1}})
		require.NoError(t, err)

		_, err = f.carts.Purchase(ctx, cartID, "key-1")
		require.NoError(t, err)
		_, err = f.carts.Replace(ctx, cartID, []store.LineItem{{ProductID: a.ID, Quantity: 1}})
		require.NoError(t, err)

		_, err = f.carts.Purchase(ctx, cartID, "key-1")

		require.ErrorIs(t, err, serrors.ErrConflict)
		assertStock(t, f.products, a.ID, 9)
	})

	t.Run("Error - empty cart", func(t *testing.T) {
		f := newCartFixture(t)
		cartID := f.newCart(t)

		_, err := f.carts.Purchase(ctx, cartID, "")

		assert.ErrorIs(t, err, serrors.ErrValidation)
	})

	t.Run("Error - cart missing", func(t *testing.T) {
		f := newCartFixture(t)

		_, err := f.carts.Purchase(ctx, uuid.New(), "")

		assert.ErrorIs(t, err, serrors.ErrNotFound)
	})

	t.Run("Error - idempotency store unavailable", func(t *testing.T) {
		f := newCartFixture(t)
		f.carts.idempotency = failingKeys{err: errors.New("redis down")}
		cartID := f.newCart(t)

		_, err := f.carts.Purchase(ctx, cartID, "key-1")

		assert.ErrorIs(t, err, serrors.ErrInternal)
	})
}

func Test_CartService_ConcurrentPurchasesOfOneCart(t *testing.T) {
	ctx := context.Background()
	f := newCartFixture(t)
	cartID := f.newCart(t)
	a := mustCreate(t, f.products, productDto("A", 1, 10))
	_, err := f.carts.Replace(ctx, cartID, []store.LineItem{{ProductID: a.ID, Quantity: 3}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var purchased, refused atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.carts.Purchase(ctx, cartID, "")
			switch {
			case err == nil:
				purchased.Add(1)
			case errors.Is(err, serrors.ErrValidation):
				refused.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), purchased.Load())
	assert.Equal(t, int32(7), refused.Load())
	assertStock(t, f.products, a.ID, 7)
	cart, err := f.carts.FindByID(ctx, cartID)
	require.NoError(t, err)
	assert.Empty(t, cart.Products)
}

type failingKeys struct {
	err error
}

func (f failingKeys) Claim(context.Context, string) (bool, error) { return false, f.err }
func (f failingKeys) Release(context.Context, string) error       { return f.err }
