package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, setup func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(h, nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(h, nil).Code)
	}
	w := serve(h, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var kind string
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		if key == "kind" {
			var err error
			kind, err = d.Str()
			return err
		}
		return d.Skip()
	}))
	assert.Equal(t, "RateLimited", kind)
}

func TestRateLimit_Keys(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	fromIP := func(ip string) func(*http.Request) {
		return func(r *http.Request) { r.RemoteAddr = ip + ":1234" }
	}
	withKey := func(key string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("api_key", key) }
	}

	assert.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.1")).Code)
	assert.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, fromIP("10.0.0.1")).Code)

	// Rotating api_key values does not buy a fresh bucket.
	both := func(ip, key string) func(*http.Request) {
		return func(r *http.Request) { fromIP(ip)(r); withKey(key)(r) }
	}
	assert.Equal(t, http.StatusOK, serve(h, both("10.0.0.3", "key-a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, both("10.0.0.3", "key-b")).Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	for _, cfg := range []RateLimitConfig{{Max: 1}, {Window: time.Minute}, {Max: 1, Window: -time.Second}} {
		h := RateLimit(t.Context(), cfg)(okHandler())
		for range 3 {
			w := serve(h, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := RateLimit(t.Context(), RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Tenant") },
	})(okHandler())

	tenant := func(v string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Tenant", v) }
	}
	assert.Equal(t, http.StatusOK, serve(h, tenant("a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, tenant("a")).Code)
	assert.Equal(t, http.StatusOK, serve(h, tenant("b")).Code)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := range 4 {
		_, _, ok := l.take("k", base.Add(time.Duration(i)*time.Second))
		require.True(t, ok)
	}
	_, _, ok := l.take("k", base.Add(30*time.Second))
	assert.False(t, ok)

	// Halfway into the next window half of the previous count still applies.
	remaining, _, ok := l.take("k", base.Add(90*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	// Two windows later the key starts fresh.
	remaining, _, ok = l.take("k", base.Add(3*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)

	l.sweep(base.Add(10 * time.Minute))
	assert.Empty(t, l.counters)
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"peer address", nil, "ip:192.168.1.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, "ip:203.0.113.50"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "ip:198.51.100.7"},
		{"api key ignored", map[string]string{"api_key": "secret", "X-Real-IP": "198.51.100.7"}, "ip:198.51.100.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.168.1.1:4444"
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientKey(req))
		})
	}
}
