// Package e2e runs the storefront against a real PostgreSQL instance.
//
// The suite starts a PostgreSQL container with testcontainers-go, applies the embedded
// migrations and serves the full application handler from an httptest.Server.
// Each test starts from empty tables.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/abgdnv/storefront/internal/idempotency"
	"github.com/abgdnv/storefront/internal/realtime"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// skipE2ETests is the environment variable that can be set to skip E2E tests.
const skipE2ETests = "STOREFRONT_SKIP_E2E_TESTS"

type StorefrontE2ESuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	deps        *app.Dependencies
	server      *httptest.Server
	httpClient  *http.Client
	logger      *slog.Logger
	ctx         context.Context
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *StorefrontE2ESuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgx pool")

	for i := range 10 {
		s.logger.Info("Pinging E2E PostgreSQL database", "attempt", i+1)
		err = s.dbPool.Ping(s.ctx)
		if err == nil {
			break
		}
		time.Sleep(time.Second * 2)
	}
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL after retries")
	require.NoError(s.T(), store.Migrate(connStr), "Failed to apply migrations")

	// the base URL is only known once the server listens
	s.server = httptest.NewUnstartedServer(nil)
	baseURL := "http://" + s.server.Listener.Addr().String()
	rtCfg := realtime.Config{
		SendBuffer:   64,
		WriteTimeout: 5 * time.Second,
		PingInterval: time.Minute,
		ReadLimit:    64 * 1024,
	}
	s.deps = app.SetupDependencies(app.NewPgStores(s.dbPool), idempotency.NewMemoryStore(time.Hour), nil, rtCfg, baseURL, s.logger)
	handler, err := app.SetupHttpHandler(s.deps)
	require.NoError(s.T(), err, "Failed to set up HTTP handler")
	s.server.Config.Handler = handler
	s.server.Start()
	s.httpClient = s.server.Client()
}

func (s *StorefrontE2ESuite) TearDownSuite() {
	if s.deps != nil {
		s.deps.Hub.Close()
	}
	if s.server != nil {
		s.server.Close()
	}
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Warn("failed to terminate PostgreSQL container", "error", err)
		}
	}
}

func (s *StorefrontE2ESuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE products, carts, cart_items, messages RESTART IDENTITY CASCADE")
	require.NoError(s.T(), err, "Failed to truncate tables")
}

func TestStorefrontE2E(t *testing.T) {
	if os.Getenv(skipE2ETests) == "1" {
		t.Skip("Skipping E2E tests based on " + skipE2ETests + " env var")
	}
	suite.Run(t, new(StorefrontE2ESuite))
}

func (s *StorefrontE2ESuite) doRequest(method, path string, body any, headers ...string) *http.Response {
	s.T().Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(s.ctx, method, s.server.URL+path, reader)
	require.NoError(s.T(), err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	return resp
}

func (s *StorefrontE2ESuite) decodeEnvelope(resp *http.Response, data any) envelope {
	s.T().Helper()
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&env))
	if data != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		require.NoError(s.T(), json.Unmarshal(env.Data, data))
	}
	return env
}

func (s *StorefrontE2ESuite) createProduct(code string, price float64, stock int) store.Product {
	s.T().Helper()
	resp := s.doRequest(http.MethodPost, "/api/products", map[string]any{
		"title": "Product " + code, "description": "About " + code, "code": code,
		"price": price, "stock": stock, "category": "tools",
	})
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	var p store.Product
	env := s.decodeEnvelope(resp, &p)
	require.Equal(s.T(), web.StatusSuccess, env.Status)
	return p
}

func (s *StorefrontE2ESuite) createCart(items ...store.LineItem) uuid.UUID {
	s.T().Helper()
	resp := s.doRequest(http.MethodPost, "/api/carts", nil)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	var cart store.Cart
	s.decodeEnvelope(resp, &cart)
	if len(items) > 0 {
		resp = s.doRequest(http.MethodPut, "/api/carts/"+cart.ID.String(), map[string]any{"products": items})
		require.Equal(s.T(), http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}
	return cart.ID
}

func (s *StorefrontE2ESuite) TestProductLifecycle() {
	created := s.createProduct("H1", 12.5, 3)
	require.NotEqual(s.T(), uuid.Nil, created.ID)

	testCases := []struct {
		name            string
		method          string
		path            string
		body            any
		expectedStatus  int
		expectedMessage string
	}{
		{
			name:           "get created product",
			method:         http.MethodGet,
			path:           "/api/products/" + created.ID.String(),
			expectedStatus: http.StatusOK,
		},
		{
			name:            "duplicate code",
			method:          http.MethodPost,
			path:            "/api/products",
			body:            map[string]any{"title": "Again", "description": "d", "code": "H1", "price": 1, "stock": 1, "category": "tools"},
			expectedStatus:  http.StatusConflict,
			expectedMessage: "ConflictError: product with code H1 already exists",
		},
		{
			name:           "update price",
			method:         http.MethodPut,
			path:           "/api/products/" + created.ID.String(),
			body:           map[string]any{"price": 15},
			expectedStatus: http.StatusOK,
		},
		{
			name:            "update id is rejected",
			method:          http.MethodPut,
			path:            "/api/products/" + created.ID.String(),
			body:            map[string]any{"id": uuid.NewString()},
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: `InvalidUpdateField: field "id" cannot be updated`,
		},
		{
			name:           "delete product",
			method:         http.MethodDelete,
			path:           "/api/products/" + created.ID.String(),
			expectedStatus: http.StatusOK,
		},
		{
			name:            "get deleted product",
			method:          http.MethodGet,
			path:            "/api/products/" + created.ID.String(),
			expectedStatus:  http.StatusNotFound,
			expectedMessage: fmt.Sprintf("NotFoundError: Product with id: %s not found.", created.ID),
		},
	}

	for _, tc := range testCases {
		resp := s.doRequest(tc.method, tc.path, tc.body)
		s.Equal(tc.expectedStatus, resp.StatusCode, tc.name)
		env := s.decodeEnvelope(resp, nil)
		if tc.expectedMessage != "" {
			s.Equal(web.StatusError, env.Status, tc.name)
			s.Equal(tc.expectedMessage, env.Message, tc.name)
		}
	}
}

func (s *StorefrontE2ESuite) TestProductPagination() {
	for i := range 5 {
		s.createProduct(fmt.Sprintf("P%d", i), float64(10+i), 1)
	}

	resp := s.doRequest(http.MethodGet, "/api/products?page=2&limit=2&sort=desc", nil)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()
	var page service.PageResult
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&page))

	s.Equal("Success", page.Status)
	s.Equal(3, page.TotalPages)
	s.Equal(2, page.Page)
	s.True(page.HasPrevPage)
	s.True(page.HasNextPage)
	require.Len(s.T(), page.Payload, 2)
	s.Equal(12.0, page.Payload[0].Price)
	s.Equal(11.0, page.Payload[1].Price)
	require.NotNil(s.T(), page.NextLink)
	s.Equal(s.server.URL+"/products?page=3&limit=2&sort=desc", *page.NextLink)
}

func (s *StorefrontE2ESuite) TestPurchase() {
	hammer := s.createProduct("H1", 12.5, 3)
	saw := s.createProduct("S1", 20, 1)
	cartID := s.createCart(
		store.LineItem{ProductID: hammer.ID, Quantity: 2},
		store.LineItem{ProductID: saw.ID, Quantity: 1},
	)

	resp := s.doRequest(http.MethodPost, "/api/carts/"+cartID.String()+"/purchase", nil, "Idempotency-Key", "k1")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	var receipt service.Receipt
	s.decodeEnvelope(resp, &receipt)
	s.Equal(cartID, receipt.CartID)
	s.Len(receipt.Items, 2)

	// stock is reserved and the cart is emptied
	var product store.Product
	s.decodeEnvelope(s.doRequest(http.MethodGet, "/api/products/"+hammer.ID.String(), nil), &product)
	s.Equal(1, product.Stock)
	s.decodeEnvelope(s.doRequest(http.MethodGet, "/api/products/"+saw.ID.String(), nil), &product)
	s.Equal(0, product.Stock)
	var items []store.LineItem
	s.decodeEnvelope(s.doRequest(http.MethodGet, "/api/carts/"+cartID.String(), nil), &items)
	s.Empty(items)

	// a retry with the same key is refused
	resp = s.doRequest(http.MethodPost, "/api/carts/"+cartID.String()+"/purchase", nil, "Idempotency-Key", "k1")
	s.Equal(http.StatusConflict, resp.StatusCode)
	env := s.decodeEnvelope(resp, nil)
	s.Equal("ConflictError: purchase with idempotency key k1 was already submitted", env.Message)
}

func (s *StorefrontE2ESuite) TestPurchaseFailsWholeCartOnShortage() {
	hammer := s.createProduct("H1", 12.5, 5)
	saw := s.createProduct("S1", 20, 1)
	cartID := s.createCart(
		store.LineItem{ProductID: hammer.ID, Quantity: 2},
		store.LineItem{ProductID: saw.ID, Quantity: 3},
	)

	resp := s.doRequest(http.MethodPost, "/api/carts/"+cartID.String()+"/purchase", nil)
	s.Equal(http.StatusConflict, resp.StatusCode)
	env := s.decodeEnvelope(resp, nil)
	s.Equal(fmt.Sprintf("InsufficientStock: product %s: requested 3, available 1", saw.ID), env.Message)

	var product store.Product
	s.decodeEnvelope(s.doRequest(http.MethodGet, "/api/products/"+hammer.ID.String(), nil), &product)
	s.Equal(5, product.Stock, "no stock is taken when any line fails")
	var items []store.LineItem
	s.decodeEnvelope(s.doRequest(http.MethodGet, "/api/carts/"+cartID.String(), nil), &items)
	s.Len(items, 2, "the cart is kept")
}

func (s *StorefrontE2ESuite) TestConcurrentPurchasesDoNotOversell() {
	const buyers = 8
	product := s.createProduct("L1", 99, 3)
	carts := make([]uuid.UUID, buyers)
	for i := range carts {
		carts[i] = s.createCart(store.LineItem{ProductID: product.ID, Quantity: 1})
	}

	var wg sync.WaitGroup
	statuses := make([]int, buyers)
	for i, cartID := range carts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.server.URL+"/api/carts/"+cartID.String()+"/purchase", nil)
			if err != nil {
				return
			}
			resp, err := s.httpClient.Do(req)
			if err != nil {
				return
			}
			_ = resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, status := range statuses {
		switch status {
		case http.StatusOK:
			succeeded++
		case http.StatusConflict:
		default:
			s.Failf("unexpected status", "got %d", status)
		}
	}
	s.Equal(3, succeeded)

	var after store.Product
	s.decodeEnvelope(s.doRequest(http.MethodGet, "/api/products/"+product.ID.String(), nil), &after)
	s.Equal(0, after.Stock)
}

func (s *StorefrontE2ESuite) TestMessagesAndPages() {
	resp := s.doRequest(http.MethodPost, "/api/messages", map[string]string{"user": "ana@example.com", "message": "hello"})
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	var messages []store.Message
	s.decodeEnvelope(s.doRequest(http.MethodGet, "/api/messages", nil), &messages)
	require.Len(s.T(), messages, 1)
	s.Equal("hello", messages[0].Message)

	resp = s.doRequest(http.MethodGet, "/chat", nil)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	s.Contains(resp.Header.Get("Content-Type"), "text/html")
	body, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)
	_ = resp.Body.Close()
	s.Contains(string(body), "hello")
}

func (s *StorefrontE2ESuite) TestCreatedProductReachesSockets() {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(s.T(), err)
	defer func() { _ = conn.Close() }()
	require.Eventually(s.T(), func() bool { return s.deps.Hub.Count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	created := s.createProduct("W1", 5, 2)

	require.NoError(s.T(), conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame struct {
		Event string        `json:"event"`
		Data  store.Product `json:"data"`
	}
	require.NoError(s.T(), conn.ReadJSON(&frame))
	s.Equal(service.EventNewItem, frame.Event)
	s.Equal(created.ID, frame.Data.ID)
}
