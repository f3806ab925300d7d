package view

import (
	"errors"
	"net/http"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/web"
)

type productsPage struct {
	Title    string
	Products []store.Product
	Page     int
	Total    int
	PrevLink string
	NextLink string
}

type productPage struct {
	Title   string
	Product *store.Product
}

type cartLine struct {
	ProductID string
	Product   *store.Product
	Quantity  int
	Subtotal  float64
}

type cartPage struct {
	Title string
	ID    string
	Lines []cartLine
	Total float64
}

type realtimePage struct {
	Title    string
	Products []store.Product
}

type chatPage struct {
	Title    string
	Messages []store.Message
}

// ProductList renders one page of the catalogue. It accepts the same query parameters as the API.
func (h *Handler) ProductList(w http.ResponseWriter, r *http.Request) {
	page, err := web.ParseQueryInt(r, "page", 0, web.Gte(1))
	if err != nil {
		h.renderErr(w, r, "Invalid page", serrors.Validation("%v", err))
		return
	}
	limit, err := web.ParseQueryInt(r, "limit", 0, web.Gte(1), web.Lte(service.MaxPageLimit))
	if err != nil {
		h.renderErr(w, r, "Invalid limit", serrors.Validation("%v", err))
		return
	}
	q := r.URL.Query()
	result, err := h.products.Paginate(r.Context(), service.PageQuery{
		Page:  page,
		Limit: limit,
		Sort:  q.Get("sort"),
		Query: q.Get("query"),
	})
	if err != nil {
		h.renderErr(w, r, "Error listing products", err)
		return
	}

	data := productsPage{
		Title:    "Products",
		Products: result.Payload,
		Page:     result.Page,
		Total:    result.TotalPages,
	}
	if result.PrevLink != nil {
		data.PrevLink = *result.PrevLink
	}
	if result.NextLink != nil {
		data.NextLink = *result.NextLink
	}
	h.render(w, r, http.StatusOK, "products", data)
}

func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "pid")
	if err != nil {
		h.renderErr(w, r, "Invalid product ID", err)
		return
	}
	product, err := h.products.FindByID(r.Context(), id)
	if err != nil {
		h.renderErr(w, r, "Error retrieving product", err)
		return
	}
	h.render(w, r, http.StatusOK, "product", productPage{Title: product.Title, Product: product})
}

// Cart renders the cart with product details. Lines whose product was deleted are kept without details.
func (h *Handler) Cart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "cid")
	if err != nil {
		h.renderErr(w, r, "Invalid cart ID", err)
		return
	}
	cart, err := h.carts.FindByID(r.Context(), id)
	if err != nil {
		h.renderErr(w, r, "Error retrieving cart", err)
		return
	}

	data := cartPage{Title: "Cart", ID: cart.ID.String(), Lines: make([]cartLine, 0, len(cart.Products))}
	for _, item := range cart.Products {
		line := cartLine{ProductID: item.ProductID.String(), Quantity: item.Quantity}
		product, err := h.products.FindByID(r.Context(), item.ProductID)
		switch {
		case err == nil:
			line.Product = product
			line.Subtotal = product.Price * float64(item.Quantity)
			data.Total += line.Subtotal
		case !errors.Is(err, serrors.ErrNotFound):
			h.renderErr(w, r, "Error retrieving cart product", err)
			return
		}
		data.Lines = append(data.Lines, line)
	}
	h.render(w, r, http.StatusOK, "cart", data)
}

// RealtimeProducts renders the first page of products; the page script keeps it current.
func (h *Handler) RealtimeProducts(w http.ResponseWriter, r *http.Request) {
	result, err := h.products.Paginate(r.Context(), service.PageQuery{Limit: service.MaxPageLimit})
	if err != nil {
		h.renderErr(w, r, "Error listing products", err)
		return
	}
	h.render(w, r, http.StatusOK, "realtime", realtimePage{Title: "Realtime products", Products: result.Payload})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.FindAll(r.Context())
	if err != nil {
		h.renderErr(w, r, "Error retrieving messages", err)
		return
	}
	h.render(w, r, http.StatusOK, "chat", chatPage{Title: "Chat", Messages: messages})
}
