package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MaxPageLimit caps the page size of Paginate.
const MaxPageLimit = 100

// ProductService defines the methods for managing products and their stock.
type ProductService interface {
	// Create validates and stores a new product, then broadcasts new_item.
	// Returns ConflictError if the code is already in use.
	Create(ctx context.Context, product ProductCreateDto) (*store.Product, error)

	// FindByID returns NotFoundError if no product exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*store.Product, error)

	// Paginate returns one page of products with navigation links.
	Paginate(ctx context.Context, query PageQuery) (*PageResult, error)

	// Update merges update into the stored product.
	Update(ctx context.Context, id uuid.UUID, update ProductUpdate) (*store.Product, error)

	// Delete returns NotFoundError if no product exists with the given ID.
	Delete(ctx context.Context, id uuid.UUID) error

	// CheckStock reports whether the product exists and has stock left.
	CheckStock(ctx context.Context, id uuid.UUID) (bool, error)

	// ReduceStock reserves every line item or none of them.
	// It returns false with an InsufficientStock error naming the first item that cannot be satisfied.
	ReduceStock(ctx context.Context, items []store.LineItem) (bool, error)

	// ReduceProductStock reserves a single unit of one product.
	ReduceProductStock(ctx context.Context, id uuid.UUID) (bool, error)
}

// ProductCreateDto represents the data transfer object for creating a new product.
type ProductCreateDto struct {
	Title       string   `json:"title"       validate:"required"`
	Description string   `json:"description" validate:"required"`
	Code        string   `json:"code"        validate:"required"`
	Price       float64  `json:"price"       validate:"gte=0"`
	Stock       int      `json:"stock"       validate:"gte=0"`
	Category    string   `json:"category"    validate:"required"`
	Thumbnails  []string `json:"thumbnails"`
}

// PageQuery is the raw paginated query as received from a client.
type PageQuery struct {
	Page  int
	Limit int
	Sort  string
	Query string
}

// PageResult is a page of products plus the navigation block returned to clients.
type PageResult struct {
	Status      string          `json:"status"`
	Payload     []store.Product `json:"payload"`
	TotalPages  int             `json:"totalPages"`
	PrevPage    *int            `json:"prevPage"`
	NextPage    *int            `json:"nextPage"`
	Page        int             `json:"page"`
	HasPrevPage bool            `json:"hasPrevPage"`
	HasNextPage bool            `json:"hasNextPage"`
	FirstLink   string          `json:"firstLink"`
	LastLink    string          `json:"lastLink"`
	PrevLink    *string         `json:"prevLink"`
	NextLink    *string         `json:"nextLink"`
}

type reservation struct {
	Items []store.LineItem `validate:"dive"`
}

var _ ProductService = (*Products)(nil)

// Products implements ProductService.
type Products struct {
	store        store.ProductStore
	broadcaster  Broadcaster
	validate     *validator.Validate
	baseURL      string
	logger       *slog.Logger
	tracer       trace.Tracer
	reservations metric.Int64Counter
}

// NewProductService creates a ProductService. baseURL prefixes the navigation links of Paginate.
func NewProductService(productStore store.ProductStore, broadcaster Broadcaster, baseURL string, logger *slog.Logger) *Products {
	meter := otel.Meter("storefront-service")
	reservations, err := meter.Int64Counter("stock_reservations",
		metric.WithDescription("Stock reservations by outcome"))
	if err != nil {
		panic(fmt.Sprintf("failed to create stock_reservations counter: %v", err))
	}
	if broadcaster == nil {
		broadcaster = NopBroadcaster
	}
	return &Products{
		store:        productStore,
		broadcaster:  broadcaster,
		validate:     newValidator(),
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       logger.With("component", "product-service"),
		tracer:       otel.Tracer("storefront-service"),
		reservations: reservations,
	}
}

func (s *Products) Create(ctx context.Context, dto ProductCreateDto) (*store.Product, error) {
	if err := s.validate.Struct(dto); err != nil {
		return nil, validationError(err)
	}

	_, err := s.store.FindByCode(ctx, dto.Code)
	switch {
	case err == nil:
		return nil, serrors.Conflict("product with code %s already exists", dto.Code)
	case !errors.Is(err, serrors.ErrProductNotFound):
		return nil, serrors.Internal(err, "failed to check product code")
	}

	thumbnails := dto.Thumbnails
	if thumbnails == nil {
		thumbnails = []string{}
	}
	created, err := s.store.Create(ctx, store.Product{
		Title:       dto.Title,
		Description: dto.Description,
		Code:        dto.Code,
		Price:       dto.Price,
		Stock:       dto.Stock,
		Category:    dto.Category,
		Thumbnails:  thumbnails,
	})
	if err != nil {
		if errors.Is(err, serrors.ErrDuplicateCode) {
			return nil, serrors.Conflict("product with code %s already exists", dto.Code)
		}
		return nil, serrors.Internal(err, "failed to create product")
	}

	s.broadcaster.Broadcast(ctx, EventNewItem, created)
	return created, nil
}

func (s *Products) FindByID(ctx context.Context, id uuid.UUID) (*store.Product, error) {
	product, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, serrors.ErrProductNotFound) {
			return nil, serrors.NotFound("Product with id: %s not found.", id)
		}
		return nil, serrors.Internal(err, "failed to fetch product %s", id)
	}
	return product, nil
}

func (s *Products) Paginate(ctx context.Context, query PageQuery) (*PageResult, error) {
	if query.Limit > MaxPageLimit {
		return nil, serrors.Validation("limit must not exceed %d", MaxPageLimit)
	}
	sort := store.SortOrder(query.Sort)
	switch sort {
	case store.SortNone, store.SortAsc, store.SortDesc:
	default:
		return nil, serrors.Validation("sort must be asc or desc")
	}
	filter, err := ParseFilter(query.Query)
	if err != nil {
		return nil, err
	}

	req := store.PageRequest{Page: query.Page, Limit: query.Limit, Sort: sort}.Normalized()
	page, err := s.store.Paginate(ctx, filter, req)
	if err != nil {
		return nil, serrors.Internal(err, "failed to paginate products")
	}

	status := "Error"
	if len(page.Docs) > 0 {
		status = "Success"
	}
	result := &PageResult{
		Status:      status,
		Payload:     page.Docs,
		TotalPages:  page.TotalPages,
		PrevPage:    page.PrevPage,
		NextPage:    page.NextPage,
		Page:        page.Page,
		HasPrevPage: page.HasPrevPage,
		HasNextPage: page.HasNextPage,
		FirstLink:   s.pageLink(1, query),
		LastLink:    s.pageLink(page.TotalPages, query),
	}
	if page.HasPrevPage {
		link := s.pageLink(*page.PrevPage, query)
		result.PrevLink = &link
	}
	if page.HasNextPage {
		link := s.pageLink(*page.NextPage, query)
		result.NextLink = &link
	}
	return result, nil
}

// pageLink keeps the caller's explicit limit and sort on every navigation link.
func (s *Products) pageLink(page int, query PageQuery) string {
	var b strings.Builder
	b.WriteString(s.baseURL)
	b.WriteString("/products?page=")
	b.WriteString(strconv.Itoa(page))
	if query.Limit > 0 {
		b.WriteString("&limit=")
		b.WriteString(strconv.Itoa(query.Limit))
	}
	if query.Sort != "" {
		b.WriteString("&sort=")
		b.WriteString(query.Sort)
	}
	return b.String()
}

// ParseFilter decodes the JSON query parameter of Paginate. An empty string matches everything.
func ParseFilter(raw string) (store.ProductFilter, error) {
	var filter store.ProductFilter
	if strings.TrimSpace(raw) == "" {
		return filter, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&filter); err != nil {
		return store.ProductFilter{}, serrors.Validation("invalid query: %v", err)
	}
	if dec.More() {
		return store.ProductFilter{}, serrors.Validation("invalid query: trailing data")
	}
	return filter, nil
}

// Update merges update into the stored product. The merge runs under the store's row lock,
// so it never writes back a stock value a concurrent reservation has already changed.
func (s *Products) Update(ctx context.Context, id uuid.UUID, update ProductUpdate) (*store.Product, error) {
	var code string
	updated, err := s.store.Update(ctx, id, func(p *store.Product) error {
		update.ApplyTo(p)
		if p.Price < 0 || p.Stock < 0 {
			return serrors.Validation("price and stock must not be negative")
		}
		code = p.Code
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, serrors.ErrValidation):
			return nil, err
		case errors.Is(err, serrors.ErrProductNotFound):
			return nil, serrors.NotFound("Product with id: %s not found.", id)
		case errors.Is(err, serrors.ErrDuplicateCode):
			return nil, serrors.Conflict("product with code %s already exists", code)
		}
		return nil, serrors.Internal(err, "failed to update product %s", id)
	}
	return updated, nil
}

func (s *Products) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, serrors.ErrProductNotFound) {
			return serrors.NotFound("Product with id: %s not found.", id)
		}
		return serrors.Internal(err, "failed to delete product %s", id)
	}
	return nil
}

func (s *Products) CheckStock(ctx context.Context, id uuid.UUID) (bool, error) {
	product, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, serrors.ErrProductNotFound) {
			return false, nil
		}
		return false, serrors.Internal(err, "failed to check stock of product %s", id)
	}
	return product.Stock > 0, nil
}

func (s *Products) ReduceProductStock(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.ReduceStock(ctx, []store.LineItem{{ProductID: id, Quantity: 1}})
}

func (s *Products) ReduceStock(ctx context.Context, items []store.LineItem) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ReduceStock", trace.WithAttributes(attribute.Int("items", len(items))))
	defer span.End()

	if err := s.validate.Struct(reservation{Items: items}); err != nil {
		return false, validationError(err)
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	err := s.store.WithStockLock(ctx, ids, func(tx store.StockTx) error {
		// check every item before touching any of them
		for _, item := range items {
			available, err := availableStock(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}
			if available < item.Quantity {
				return serrors.InsufficientStock(item.ProductID.String(), item.Quantity, available)
			}
		}
		for _, item := range items {
			if _, err := tx.FindByID(ctx, item.ProductID); err != nil {
				return fmt.Errorf("failed to re-read product %s: %w", item.ProductID, err)
			}
			if _, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, serrors.ErrStockConflict) {
					// the same product listed twice can pass the per-item check
					available, _ := availableStock(ctx, tx, item.ProductID)
					return serrors.InsufficientStock(item.ProductID.String(), item.Quantity, available)
				}
				return fmt.Errorf("failed to decrement stock of product %s: %w", item.ProductID, err)
			}
		}
		return nil
	})

	switch {
	case err == nil:
		s.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "reserved")))
		s.logger.InfoContext(ctx, "Stock reserved", "items", len(items))
		return true, nil
	case errors.Is(err, serrors.ErrInsufficientStock):
		s.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "insufficient")))
		s.logger.InfoContext(ctx, "Stock reservation refused", "reason", serrors.Message(err))
		return false, err
	default:
		s.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		return false, serrors.Internal(err, "failed to reserve stock")
	}
}

// availableStock treats a missing product as having no stock.
func availableStock(ctx context.Context, tx store.StockTx, id uuid.UUID) (int, error) {
	product, err := tx.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, serrors.ErrProductNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to check stock of product %s: %w", id, err)
	}
	return product.Stock, nil
}
