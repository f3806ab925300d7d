package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/idempotency"
	"github.com/abgdnv/storefront/internal/realtime"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRealtime = realtime.Config{
	SendBuffer:   8,
	WriteTimeout: time.Second,
	PingInterval: 30 * time.Second,
	ReadLimit:    1 << 16,
}

func newTestServer(t *testing.T, relay service.Broadcaster) (*Dependencies, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := SetupDependencies(NewMemoryStores(), idempotency.NewMemoryStore(time.Hour), relay, testRealtime, "http://localhost:8080", logger)
	deps.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics")
	})

	handler, err := SetupHttpHandler(deps)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		deps.Hub.Close()
		srv.Close()
	})
	return deps, srv
}

func TestSetupHttpHandler_Routes(t *testing.T) {
	_, srv := newTestServer(t, nil)

	testCases := []struct {
		path         string
		expectedCode int
		contentType  string
	}{
		{path: "/healthz", expectedCode: http.StatusOK},
		{path: "/api/products", expectedCode: http.StatusOK, contentType: "application/json"},
		{path: "/api/messages", expectedCode: http.StatusOK, contentType: "application/json"},
		{path: "/products", expectedCode: http.StatusOK, contentType: "text/html; charset=utf-8"},
		{path: "/chat", expectedCode: http.StatusOK, contentType: "text/html; charset=utf-8"},
		{path: "/metrics", expectedCode: http.StatusOK},
		{path: "/does/not/exist", expectedCode: http.StatusNotFound, contentType: "application/json"},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := srv.Client().Get(srv.URL + tc.path)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tc.expectedCode, resp.StatusCode)
			if tc.contentType != "" {
				assert.Equal(t, tc.contentType, resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestSetupDependencies_BroadcastsReachRelayAndSockets(t *testing.T) {
	relayed := make(chan string, 1)
	relay := service.BroadcasterFunc(func(_ context.Context, event string, _ any) {
		relayed <- event
	})
	deps, srv := newTestServer(t, relay)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return deps.Hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := srv.Client().Post(srv.URL+"/api/messages", "application/json",
		strings.NewReader(`{"user":"ana@example.com","message":"hi"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame struct {
		Event string `json:"event"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, service.EventNewMessage, frame.Event)
	assert.Equal(t, service.EventNewMessage, <-relayed)
}
