package rest

import (
	"net/http"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/web"
)

// ListProducts serves the paginated product query. The body is the page itself, not an envelope.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	query, err := pageQuery(r)
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid page query", err)
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to list products", "page", query.Page, "limit", query.Limit, "sort", query.Sort)
	result, err := h.products.Paginate(r.Context(), query)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error listing products", err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, result)
}

// pageQuery reads page, limit, sort and query from the URL.
func pageQuery(r *http.Request) (service.PageQuery, error) {
	page, err := web.ParseQueryInt(r, "page", 0, web.Gte(1))
	if err != nil {
		return service.PageQuery{}, serrors.Validation("%v", err)
	}
	limit, err := web.ParseQueryInt(r, "limit", 0, web.Gte(1), web.Lte(service.MaxPageLimit))
	if err != nil {
		return service.PageQuery{}, serrors.Validation("%v", err)
	}
	q := r.URL.Query()
	return service.PageQuery{Page: page, Limit: limit, Sort: q.Get("sort"), Query: q.Get("query")}, nil
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, err := pathID(r, "pid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid product ID", err)
		return
	}

	found, err := h.products.FindByID(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error retrieving product", err)
		return
	}
	web.RespondSuccess(w, mLogger, http.StatusOK, "Product found", found)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var dto service.ProductCreateDto
	if err := decodeBody(w, r, &dto); err != nil {
		h.respondErr(w, r, mLogger, "Error decoding request body", err)
		return
	}

	created, err := h.products.Create(r.Context(), dto)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error creating product", err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "code", created.Code)
	web.RespondSuccess(w, mLogger, http.StatusCreated, "Product created successfully", created)
}

// UpdateProduct merges the body into the stored product. Unknown keys are refused.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, err := pathID(r, "pid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid product ID", err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error reading request body", err)
		return
	}
	update, err := service.ParseProductUpdate(body)
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid product update", err)
		return
	}

	updated, err := h.products.Update(r.Context(), id, update)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error updating product", err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product updated successfully", "ID", id)
	web.RespondSuccess(w, mLogger, http.StatusOK, "Product updated successfully", updated)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, err := pathID(r, "pid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid product ID", err)
		return
	}

	if err := h.products.Delete(r.Context(), id); err != nil {
		h.respondErr(w, r, mLogger, "Error deleting product", err)
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	web.RespondSuccess(w, mLogger, http.StatusOK, "Product deleted successfully", nil)
}
