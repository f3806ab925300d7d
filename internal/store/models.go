package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Product represents a product entity in the store.
type Product struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category"`
	Thumbnails  []string  `json:"thumbnails"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LineItem is one (product, quantity) entry of a cart.
type LineItem struct {
	ProductID uuid.UUID `json:"product" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type Cart struct {
	ID        uuid.UUID  `json:"id"`
	Products  []LineItem `json:"products"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type Message struct {
	ID      uuid.UUID `json:"id"`
	User    string    `json:"user"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

// ProductFilter is the structured query accepted by ProductStore.Find and Paginate.
// Zero fields do not constrain the result.
type ProductFilter struct {
	Category  string   `json:"category,omitempty"`
	Title     string   `json:"title,omitempty"`
	Code      string   `json:"code,omitempty"`
	MinPrice  *float64 `json:"minPrice,omitempty"`
	MaxPrice  *float64 `json:"maxPrice,omitempty"`
	Available *bool    `json:"available,omitempty"`
}

// Match reports whether p satisfies the filter. Title matches case-insensitively as a substring.
func (f ProductFilter) Match(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Title != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Title)) {
		return false
	}
	if f.Code != "" && p.Code != f.Code {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.Available != nil && (p.Stock > 0) != *f.Available {
		return false
	}
	return true
}
