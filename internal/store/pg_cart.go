package store

import (
	"context"
	"errors"
	"fmt"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgCartStore implements CartStore. Line items live in cart_items, ordered by position.
type PgCartStore struct {
	db *pgxpool.Pool
}

var _ CartStore = (*PgCartStore)(nil)

func NewPgCartStore(dbp *pgxpool.Pool) *PgCartStore {
	return &PgCartStore{db: dbp}
}

func (s *PgCartStore) Create(ctx context.Context) (*Cart, error) {
	cart := Cart{Products: []LineItem{}}
	err := s.db.QueryRow(ctx, `INSERT INTO carts (id) VALUES ($1) RETURNING id, created_at, updated_at`, uuid.New()).
		Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return &cart, nil
}

// FindByID loads the cart header and its items in one transaction so both reflect the same state.
func (s *PgCartStore) FindByID(ctx context.Context, id uuid.UUID) (*Cart, error) {
	var cart *Cart
	err := withTransaction(ctx, s.db, func(tx pgx.Tx) error {
		c, err := findCart(ctx, tx, id)
		if err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func findCart(ctx context.Context, q querier, id uuid.UUID) (*Cart, error) {
	cart := Cart{Products: []LineItem{}}
	err := q.QueryRow(ctx, `SELECT id, created_at, updated_at FROM carts WHERE id = $1`, id).
		Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serrors.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart by ID: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		cart.Products = append(cart.Products, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cart items: %w", err)
	}
	return &cart, nil
}

// UpdateProducts replaces the cart's line items atomically.
func (s *PgCartStore) UpdateProducts(ctx context.Context, id uuid.UUID, items []LineItem) (*Cart, error) {
	var cart *Cart
	err := withTransaction(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to update cart: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return serrors.ErrCartNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear cart items: %w", err)
		}
		if len(items) > 0 {
			batch := &pgx.Batch{}
			for i, item := range items {
				batch.Queue(`INSERT INTO cart_items (cart_id, position, product_id, quantity) VALUES ($1, $2, $3, $4)`,
					id, i, item.ProductID, item.Quantity)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert cart items: %w", err)
			}
		}
		c, err := findCart(ctx, tx, id)
		if err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// Checkout locks the cart row. fn's reservation and the clear share one transaction.
func (s *PgCartStore) Checkout(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, items []LineItem) error) ([]LineItem, error) {
	var items []LineItem
	err := withTransaction(ctx, s.db, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return serrors.ErrCartNotFound
			}
			return fmt.Errorf("failed to lock cart: %w", err)
		}
		cart, err := findCart(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(contextWithTx(ctx, tx), cart.Products); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, id); err != nil {
			return fmt.Errorf("failed to clear cart items: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to update cart: %w", err)
		}
		items = cart.Products
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
