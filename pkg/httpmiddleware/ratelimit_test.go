package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg RateLimitConfig) (http.Handler, *rateLimiter, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := newRateLimiter(cfg)
	rl.now = c.now
	return rl.middleware(okHandler()), rl, c
}

func hit(h http.Handler, remote string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Burst(t *testing.T) {
	h, _, _ := newTestLimiter(RateLimitConfig{Max: 3, Window: time.Minute})

	for i, want := range []string{"2", "1", "0"} {
		w := hit(h, "10.0.0.1:1000")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, w.Header().Get("X-RateLimit-Remaining"))
	}

	w := hit(h, "10.0.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "20", w.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "rate_limited", body["code"])
}

func TestRateLimit_Refill(t *testing.T) {
	h, _, c := newTestLimiter(RateLimitConfig{Max: 2, Window: time.Minute})

	hit(h, "10.0.0.1:1")
	hit(h, "10.0.0.1:1")
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1").Code)

	c.advance(30 * time.Second)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1").Code, "denied requests do not borrow tokens")
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h, _, _ := newTestLimiter(RateLimitConfig{Max: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2").Code, "port does not matter")
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	h, _, _ := newTestLimiter(RateLimitConfig{Max: 1, Window: time.Minute})

	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:1", "X-Forwarded-For", "203.0.113.50, 70.41.3.18").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.2:1", "X-Forwarded-For", "203.0.113.50").Code)
}

func TestRateLimit_CustomKey(t *testing.T) {
	h, _, _ := newTestLimiter(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-Session-ID")
		},
	})

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", "X-Session-ID", "a").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", "X-Session-ID", "a").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", "X-Session-ID", "b").Code)
}

func TestRateLimit_Evict(t *testing.T) {
	h, rl, c := newTestLimiter(RateLimitConfig{Max: 1, Window: time.Minute})

	hit(h, "10.0.0.1:1")
	c.advance(30 * time.Second)
	hit(h, "10.0.0.2:1")

	c.advance(40 * time.Second)
	rl.evict(c.now())
	assert.Equal(t, 1, rl.size(), "only the idle visitor goes")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.1.1:443"
	assert.Equal(t, "10.1.1.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "10.2.2.2")
	assert.Equal(t, "10.2.2.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 10.3.3.3 ,10.4.4.4")
	assert.Equal(t, "10.3.3.3", ClientIP(req))
}
