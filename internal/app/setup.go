// Package app contains the application setup for the storefront service.
package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/idempotency"
	"github.com/abgdnv/storefront/internal/realtime"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/internal/transport/view"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles the persistence layer.
type Stores struct {
	Products store.ProductStore
	Carts    store.CartStore
	Messages store.MessageStore
}

func NewMemoryStores() Stores {
	return Stores{
		Products: store.NewMemoryProductStore(),
		Carts:    store.NewMemoryCartStore(),
		Messages: store.NewMemoryMessageStore(),
	}
}

func NewPgStores(dbPool *pgxpool.Pool) Stores {
	return Stores{
		Products: store.NewPgProductStore(dbPool),
		Carts:    store.NewPgCartStore(dbPool),
		Messages: store.NewPgMessageStore(dbPool),
	}
}

type Dependencies struct {
	ProductService service.ProductService
	CartService    service.CartService
	MessageService service.MessageService
	Hub            *realtime.Hub
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// SetupDependencies wires the services. Broadcasts reach the local hub and, when relay is
// not nil, the message broker too.
func SetupDependencies(stores Stores, keys idempotency.Store, relay service.Broadcaster, rtCfg realtime.Config, baseURL string, logger *slog.Logger) *Dependencies {
	hub := realtime.NewHub(rtCfg, logger)
	var broadcaster service.Broadcaster = hub
	if relay != nil {
		broadcaster = realtime.Fanout{hub, relay}
	}

	products := service.NewProductService(stores.Products, broadcaster, baseURL, logger)
	return &Dependencies{
		ProductService: products,
		CartService:    service.NewCartService(stores.Carts, stores.Products, products, keys, logger),
		MessageService: service.NewMessageService(stores.Messages, broadcaster, logger),
		Hub:            hub,
		Logger:         logger,
	}
}

// SetupHttpHandler initializes the router with the API, the WebSocket endpoint and the HTML pages.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) (http.Handler, error) {
	mux := server.NewChiRouter(deps.Logger)
	if err := wireRoutes(mux, deps); err != nil {
		return nil, err
	}
	return mux, nil
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) error {
	api := rest.NewHandler(deps.ProductService, deps.CartService, deps.MessageService, deps.Logger)
	api.RegisterRoutes(mux)

	pages, err := view.NewHandler(deps.ProductService, deps.CartService, deps.MessageService, deps.Logger)
	if err != nil {
		return fmt.Errorf("failed to set up views: %w", err)
	}
	pages.RegisterRoutes(mux)

	mux.Handle("/ws", realtime.NewHandler(deps.Hub, deps.ProductService, deps.MessageService, deps.Logger))
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}
	mux.NotFound(api.NotFound)
	return nil
}

// SetupHttpServer creates and configures an HTTP server for the storefront application.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) (*http.Server, error) {
	mux, err := SetupHttpHandler(deps)
	if err != nil {
		return nil, err
	}

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}
	return server.NewHTTPServer(httpCfg, "storefront", mux), nil
}

// RealtimeConfig converts the realtime section of cfg.
func RealtimeConfig(cfg config.RealtimeConfig) realtime.Config {
	return realtime.Config{
		SendBuffer:   cfg.SendBuffer,
		WriteTimeout: cfg.WriteTimeout,
		PingInterval: cfg.PingInterval,
		ReadLimit:    cfg.ReadLimit,
	}
}
