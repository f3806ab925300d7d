// Package view renders the storefront HTML pages.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pages = []string{"products", "product", "cart", "realtime", "chat", "error"}

type Handler struct {
	products  service.ProductService
	carts     service.CartService
	messages  service.MessageService
	templates map[string]*template.Template
	logger    *slog.Logger
}

// NewHandler parses the embedded templates. Each page is parsed together with the layout.
func NewHandler(products service.ProductService, carts service.CartService, messages service.MessageService, logger *slog.Logger) (*Handler, error) {
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		templates[page] = tmpl
	}
	return &Handler{
		products:  products,
		carts:     carts,
		messages:  messages,
		templates: templates,
		logger:    logger.With("component", "view"),
	}, nil
}

var funcs = template.FuncMap{
	"price": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
}

// RegisterRoutes registers the HTML pages and their static assets.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/products", h.ProductList)
	r.Get("/products/{pid}", h.ProductDetail)
	r.Get("/cart/{cid}", h.Cart)
	r.Get("/realtimeproducts", h.RealtimeProducts)
	r.Get("/chat", h.Chat)

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))
}

// render executes the page into a buffer first so a template failure still yields a clean 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	var buf bytes.Buffer
	if err := h.templates[page].ExecuteTemplate(&buf, "layout.html", data); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to render page", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type errorPage struct {
	Title   string
	Status  int
	Kind    string
	Message string
}

func (h *Handler) renderErr(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := serrors.HTTPStatus(err)
	logger := h.logger.With("request_id", middleware.GetReqID(r.Context()))
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), msg, "error", err)
	} else {
		logger.WarnContext(r.Context(), msg, "error", err)
	}
	h.render(w, r, status, "error", errorPage{
		Title:   http.StatusText(status),
		Status:  status,
		Kind:    serrors.Name(err),
		Message: serrors.Message(err),
	})
}

func pathID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := web.ParseUUID(r, key)
	if err != nil {
		return uuid.Nil, serrors.Validation("%v", err)
	}
	return id, nil
}
