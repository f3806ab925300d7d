package service

import (
	"encoding/json"
	"maps"
	"slices"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/store"
)

var updatableFields = []string{"title", "description", "code", "price", "stock", "category", "thumbnails"}

// ProductUpdate is a partial product. Nil fields are left untouched by ApplyTo.
type ProductUpdate struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Code        *string   `json:"code,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Stock       *int      `json:"stock,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Thumbnails  *[]string `json:"thumbnails,omitempty"`
}

// ParseProductUpdate decodes a JSON object into a ProductUpdate.
// A key outside the updatable fields fails with InvalidUpdateField and nothing is returned.
func ParseProductUpdate(raw []byte) (ProductUpdate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ProductUpdate{}, serrors.Validation("update must be a JSON object")
	}
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if !slices.Contains(updatableFields, key) {
			return ProductUpdate{}, serrors.InvalidUpdateField(key)
		}
	}

	var update ProductUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return ProductUpdate{}, serrors.Validation("invalid update: %v", err)
	}
	return update, nil
}

// ApplyTo copies every set field onto p verbatim.
func (u ProductUpdate) ApplyTo(p *store.Product) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Code != nil {
		p.Code = *u.Code
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Thumbnails != nil {
		p.Thumbnails = slices.Clone(*u.Thumbnails)
	}
}
