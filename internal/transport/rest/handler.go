// Package rest provides the JSON API for products, carts and chat messages.
package rest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	products service.ProductService
	carts    service.CartService
	messages service.MessageService
	logger   *slog.Logger
}

// NewHandler creates a new instance of the REST API with the provided services.
func NewHandler(products service.ProductService, carts service.CartService, messages service.MessageService, logger *slog.Logger) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		messages: messages,
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes of the storefront API.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)

		r.Route("/{pid}", func(r chi.Router) {
			r.Get("/", h.GetProduct)
			r.Put("/", h.UpdateProduct)
			r.Delete("/", h.DeleteProduct)
		})
	})

	r.Route("/api/carts", func(r chi.Router) {
		r.Post("/", h.CreateCart)

		r.Route("/{cid}", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Put("/", h.ReplaceCart)
			r.Delete("/", h.ClearCart)
			r.Post("/product/{pid}", h.AddToCart)
			r.Put("/products/{pid}", h.UpdateCartQuantity)
			r.Delete("/products/{pid}", h.RemoveFromCart)
			r.Post("/purchase", h.Purchase)
		})
	})

	r.Route("/api/messages", func(r chi.Router) {
		r.Get("/", h.ListMessages)
		r.Post("/", h.PostMessage)
	})

	r.Get("/healthz", h.HealthCheck)
}

// NotFound answers every unmatched route.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	web.RespondError(w, h.loggerWithReqID(r), http.StatusNotFound, "Page not found.")
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// respondErr renders err as an error envelope with the status of its kind.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	status := serrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), msg, "error", err)
	} else {
		logger.WarnContext(r.Context(), msg, "error", err)
	}
	web.RespondFailure(w, logger, status, serrors.Name(err)+": "+serrors.Message(err))
}

// pathID parses a UUID path parameter; a malformed one is a ValidationError.
func pathID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := web.ParseUUID(r, key)
	if err != nil {
		return uuid.Nil, serrors.Validation("%v", err)
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	// a misnamed key must not decode to an empty request
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return serrors.Validation("invalid request body")
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, serrors.Validation("invalid request body")
	}
	return body, nil
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
