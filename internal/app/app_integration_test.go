//go:build integration

package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
)

const (
	testPepper   = "test-pepper"
	customerKey  = "customer-key"
	adminKey     = "admin-key"
	otherUserKey = "other-key"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

// startServer runs the full middleware chain against a fresh Postgres.
func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := t.Context()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "store",
				"POSTGRES_PASSWORD": "store",
				"POSTGRES_DB":       "store",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", host, port.Port())

	require.NoError(t, postgres.RunMigrations(dsn))
	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
INSERT INTO products (name, price, stock, discount_percent) VALUES
	('Waffle', 100.00, 3, 10),
	('Mug', 9.99, 10, 15);
INSERT INTO product_images (product_id, image_url, is_default) VALUES (1, '/img/waffle.jpg', TRUE);
INSERT INTO discounts (code, discount_percent, release_date, expiration_date, max_users, minimum_order_value)
VALUES ('BIG20', 20, now() - interval '1 day', now() + interval '1 day', 1, 100);
INSERT INTO cart_items (user_id, product_id, quantity) VALUES (1, 1, 2), (1, 2, 1);`)
	require.NoError(t, err)

	keys := postgres.NewAPIKeyRepository(pool)
	for _, k := range []auth.APIKeyInfo{
		{ID: "c", Name: "customer", KeyHash: handler.HashKey([]byte(testPepper), customerKey), UserID: 1, Role: auth.RoleCustomer},
		{ID: "o", Name: "other", KeyHash: handler.HashKey([]byte(testPepper), otherUserKey), UserID: 2, Role: auth.RoleCustomer},
		{ID: "a", Name: "admin", KeyHash: handler.HashKey([]byte(testPepper), adminKey), UserID: 100, Role: auth.RoleAdmin},
	} {
		require.NoError(t, keys.Upsert(ctx, k))
	}

	cfg := &Config{
		APIKeyPepper:  testPepper,
		RevocationTTL: time.Hour,
		Orders:        OrdersConfig{RestoreStockOnCancel: true, TransitionPolicy: "strict"},
		RateLimit:     RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:          CORSConfig{Origins: []string{"*"}},
	}
	healthSvc := health.New()
	healthSvc.Ready(health.Probe{Name: "postgres", Check: health.PingCheck(pool)})
	healthSvc.SetReady(true)

	api, err := newHandler(ctx, zaptest.NewLogger(t), noopTelemetry{}, cfg, pool,
		auth.NewMemoryRevocations(), events.Nop{}, healthSvc)
	require.NoError(t, err)

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, key, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, srv.URL+path, r)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(handler.APIKeyHeader, key)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func orderID(t *testing.T, body string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, jx.DecodeStr(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "order_id" {
			return d.Skip()
		}
		v, err := d.Int64()
		id = v
		return err
	}))
	return id
}

func TestAPI_OrderFlow(t *testing.T) {
	srv := startServer(t)

	status, body := call(t, srv, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, status, body)

	status, _ = call(t, srv, http.MethodPost, "/api/orders", "", `{"order_items":[{"product_id":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = call(t, srv, http.MethodPost, "/api/orders", customerKey, `{"order_items":[]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, `"kind":"EmptyOrder"`)

	// Discount must be collected before use.
	status, body = call(t, srv, http.MethodPost, "/api/orders", customerKey,
		`{"order_items":[{"product_id":1,"quantity":2,"discount_id":1}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body, `"kind":"DiscountNotCollected"`)

	status, _ = call(t, srv, http.MethodPost, "/api/discounts/1/collect", customerKey, "")
	require.Equal(t, http.StatusCreated, status)
	status, body = call(t, srv, http.MethodPost, "/api/discounts/1/collect", otherUserKey, "")
	assert.Equal(t, http.StatusConflict, status, "max_users reached")
	assert.Contains(t, body, `"kind":"DiscountUnavailable"`)

	// 2 x 90.00 = 180.00, minus 20% = 144.00; 1 x 8.4915 = 8.49.
	status, body = call(t, srv, http.MethodPost, "/api/orders", customerKey,
		`{"order_items":[{"product_id":1,"quantity":2,"discount_id":1},{"product_id":2,"quantity":1}]}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Contains(t, body, `"total_price":"152.49"`)
	id := orderID(t, body)

	status, body = call(t, srv, http.MethodPost, "/api/orders", customerKey,
		`{"order_items":[{"product_id":1,"quantity":2}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body, `"kind":"InsufficientStock"`)

	status, body = call(t, srv, http.MethodGet, "/api/orders", customerKey, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"image_url":"/img/waffle.jpg"`)

	status, body = call(t, srv, http.MethodGet, "/api/discounts/mine", customerKey, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"discounts":[]}`, body)

	path := fmt.Sprintf("/api/orders/%d", id)
	status, _ = call(t, srv, http.MethodPut, path+"/cancel", otherUserKey, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, srv, http.MethodPut, path+"/status", customerKey, `{"status":"processing"}`)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = call(t, srv, http.MethodPut, path+"/status", adminKey, `{"status":"completed"}`)
	assert.Equal(t, http.StatusConflict, status, "strict policy")

	status, body = call(t, srv, http.MethodPut, path+"/cancel", customerKey, "")
	require.Equal(t, http.StatusOK, status, body)
	status, _ = call(t, srv, http.MethodPut, path+"/cancel", customerKey, "")
	assert.Equal(t, http.StatusConflict, status)

	// The claim is usable again and stock is back.
	status, body = call(t, srv, http.MethodGet, "/api/discounts/mine", customerKey, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"claim_id":1`)
	status, body = call(t, srv, http.MethodPost, "/api/orders", customerKey,
		`{"order_items":[{"product_id":1,"quantity":3}]}`)
	assert.Equal(t, http.StatusCreated, status, body)

	status, body = call(t, srv, http.MethodGet, "/api/admin/orders", adminKey, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, strings.Count(body, `"order_id"`))
}

func TestAPI_Revoke(t *testing.T) {
	srv := startServer(t)

	status, _ := call(t, srv, http.MethodGet, "/api/orders", customerKey, "")
	require.Equal(t, http.StatusOK, status)

	status, _ = call(t, srv, http.MethodPost, "/api/auth/revoke", customerKey, "")
	require.Equal(t, http.StatusNoContent, status)

	status, _ = call(t, srv, http.MethodGet, "/api/orders", customerKey, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}
