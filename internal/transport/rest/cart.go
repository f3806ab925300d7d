package rest

import (
	"net/http"

	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/web"
)

const idempotencyKeyHeader = "Idempotency-Key"

type replaceCartRequest struct {
	Products []store.LineItem `json:"products"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	cart, err := h.carts.Create(r.Context())
	if err != nil {
		h.respondErr(w, r, mLogger, "Error creating cart", err)
		return
	}
	mLogger.InfoContext(r.Context(), "Cart created successfully", "ID", cart.ID)
	web.RespondSuccess(w, mLogger, http.StatusCreated, "Cart created successfully", cart)
}

// GetCart returns the cart's line items.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	cartID, err := pathID(r, "cid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid cart ID", err)
		return
	}

	cart, err := h.carts.FindByID(r.Context(), cartID)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error retrieving cart", err)
		return
	}
	web.RespondSuccess(w, mLogger, http.StatusOK, "Cart found", cart.Products)
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	cartID, err := pathID(r, "cid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid cart ID", err)
		return
	}
	productID, err := pathID(r, "pid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid product ID", err)
		return
	}

	cart, err := h.carts.AddProduct(r.Context(), cartID, productID)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error adding product to cart", err)
		return
	}
	web.RespondSuccess(w, mLogger, http.StatusCreated, "Product added successfully", cart)
}

func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	cartID, err := pathID(r, "cid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid cart ID", err)
		return
	}
	productID, err := pathID(r, "pid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid product ID", err)
		return
	}

	cart, err := h.carts.RemoveProduct(r.Context(), cartID, productID)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error removing product from cart", err)
		return
	}
	web.RespondSuccess(w, mLogger, http.StatusOK, "Product removed successfully", cart)
}

func (h *Handler) ReplaceCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	cartID, err := pathID(r, "cid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid cart ID", err)
		return
	}
	var req replaceCartRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondErr(w, r, mLogger, "Error decoding request body", err)
		return
	}

	cart, err := h.carts.Replace(r.Context(), cartID, req.Products)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error replacing cart", err)
		return
	}
	web.RespondSuccess(w, mLogger, http.StatusOK, "Cart updated successfully", cart)
}

func (h *Handler) UpdateCartQuantity(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	cartID, err := pathID(r, "cid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid cart ID", err)
		return
	}
	productID, err := pathID(r, "pid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid product ID", err)
		return
	}
	var req quantityRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondErr(w, r, mLogger, "Error decoding request body", err)
		return
	}

	cart, err := h.carts.UpdateQuantity(r.Context(), cartID, productID, req.Quantity)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error updating quantity", err)
		return
	}
	web.RespondSuccess(w, mLogger, http.StatusOK, "Quantity updated successfully", cart)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	cartID, err := pathID(r, "cid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid cart ID", err)
		return
	}

	cart, err := h.carts.Clear(r.Context(), cartID)
	if err != nil {
		h.respondErr(w, r, mLogger, "Error clearing cart", err)
		return
	}
	web.RespondSuccess(w, mLogger, http.StatusOK, "Cart cleared successfully", cart)
}

// Purchase checks out the cart. An Idempotency-Key header makes retries safe.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	cartID, err := pathID(r, "cid")
	if err != nil {
		h.respondErr(w, r, mLogger, "Invalid cart ID", err)
		return
	}

	receipt, err := h.carts.Purchase(r.Context(), cartID, r.Header.Get(idempotencyKeyHeader))
	if err != nil {
		h.respondErr(w, r, mLogger, "Purchase failed", err)
		return
	}
	mLogger.InfoContext(r.Context(), "Purchase completed", "cart_id", cartID, "items", len(receipt.Items))
	web.RespondSuccess(w, mLogger, http.StatusOK, "Purchase completed successfully", receipt)
}
