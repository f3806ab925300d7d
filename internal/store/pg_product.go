package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, title, description, code, price, stock, category, thumbnails, created_at, updated_at`

// PgProductStore implements ProductStore using PostgreSQL as the data store.
type PgProductStore struct {
	db *pgxpool.Pool
}

var _ ProductStore = (*PgProductStore)(nil)

// NewPgProductStore creates a new instance of ProductStore using a PostgreSQL connection pool.
func NewPgProductStore(dbp *pgxpool.Pool) *PgProductStore {
	return &PgProductStore{db: dbp}
}

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Code, &p.Price, &p.Stock,
		&p.Category, &p.Thumbnails, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}
	return &p, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// whereClause renders filter as a SQL condition with positional arguments.
func whereClause(filter ProductFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.Title != "" {
		add("strpos(lower(title), lower($%d)) > 0", filter.Title)
	}
	if filter.Code != "" {
		add("code = $%d", filter.Code)
	}
	if filter.MinPrice != nil {
		add("price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		add("price <= $%d", *filter.MaxPrice)
	}
	if filter.Available != nil {
		if *filter.Available {
			conds = append(conds, "stock > 0")
		} else {
			conds = append(conds, "stock = 0")
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(sort SortOrder) string {
	switch sort {
	case SortAsc:
		return " ORDER BY price ASC, created_at, id"
	case SortDesc:
		return " ORDER BY price DESC, created_at, id"
	default:
		return " ORDER BY created_at, id"
	}
}

func (s *PgProductStore) Find(ctx context.Context, filter ProductFilter) ([]Product, error) {
	where, args := whereClause(filter)
	rows, err := s.db.Query(ctx, `SELECT `+productColumns+` FROM products`+where+orderClause(SortNone), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}
	return products, nil
}

// FindByID retrieves a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (s *PgProductStore) FindByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	return findProductByID(ctx, s.db, id, false)
}

func findProductByID(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return p, nil
}

func (s *PgProductStore) FindByCode(ctx context.Context, code string) (*Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by code: %w", err)
	}
	return p, nil
}

// Create adds a new product to the system.
// Returns ErrDuplicateCode if the code is already in use.
func (s *PgProductStore) Create(ctx context.Context, product Product) (*Product, error) {
	if product.Thumbnails == nil {
		product.Thumbnails = []string{}
	}
	p, err := scanProduct(s.db.QueryRow(ctx, `
		INSERT INTO products (id, title, description, code, price, stock, category, thumbnails)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+productColumns,
		uuid.New(), product.Title, product.Description, product.Code, product.Price, product.Stock,
		product.Category, product.Thumbnails))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, serrors.ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return p, nil
}

// Update locks the row with SELECT ... FOR UPDATE, so it serializes with WithStockLock.
// Returns ErrProductNotFound if no product exists with the given ID.
func (s *PgProductStore) Update(ctx context.Context, id uuid.UUID, mutate func(p *Product) error) (*Product, error) {
	var updated *Product
	err := withTransaction(ctx, s.db, func(tx pgx.Tx) error {
		product, err := findProductByID(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := mutate(product); err != nil {
			return err
		}
		if product.Thumbnails == nil {
			product.Thumbnails = []string{}
		}
		p, err := scanProduct(tx.QueryRow(ctx, `
			UPDATE products
			SET title = $2, description = $3, code = $4, price = $5, stock = $6, category = $7,
			    thumbnails = $8, updated_at = now()
			WHERE id = $1
			RETURNING `+productColumns,
			id, product.Title, product.Description, product.Code, product.Price, product.Stock,
			product.Category, product.Thumbnails))
		if err != nil {
			if isUniqueViolation(err) {
				return serrors.ErrDuplicateCode
			}
			return fmt.Errorf("failed to update product: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteByID removes a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (s *PgProductStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product by ID: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return serrors.ErrProductNotFound
	}
	return nil
}

func (s *PgProductStore) Paginate(ctx context.Context, filter ProductFilter, req PageRequest) (*Page, error) {
	req = req.Normalized()
	where, args := whereClause(filter)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	n := len(args)
	sql := fmt.Sprintf(`SELECT %s FROM products%s%s LIMIT $%d OFFSET $%d`,
		productColumns, where, orderClause(req.Sort), n+1, n+2)
	rows, err := s.db.Query(ctx, sql, append(args, req.Limit, req.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to paginate products: %w", err)
	}
	docs, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}
	return NewPage(docs, total, req), nil
}

// WithStockLock locks the listed rows in a fixed order, so concurrent reservations
// over overlapping products cannot deadlock.
func (s *PgProductStore) WithStockLock(ctx context.Context, ids []uuid.UUID, fn func(tx StockTx) error) error {
	return withTransaction(ctx, s.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
		if err != nil {
			return fmt.Errorf("failed to lock products: %w", err)
		}
		for rows.Next() {
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to lock products: %w", err)
		}
		return fn(&pgStockTx{tx: tx})
	})
}

type pgStockTx struct {
	tx pgx.Tx
}

func (t *pgStockTx) FindByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	return findProductByID(ctx, t.tx, id, false)
}

func (t *pgStockTx) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (*Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING `+productColumns, id, quantity))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to decrement stock: %w", err)
	}
	// no row updated: either the product is gone or stock is short
	if _, findErr := findProductByID(ctx, t.tx, id, false); findErr != nil {
		return nil, findErr
	}
	return nil, serrors.ErrStockConflict
}
