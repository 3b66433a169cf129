package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLimiter(capacity, perMinute int) (*Limiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	l := NewLimiter(capacity, perMinute, nil)
	l.now = clk.now
	return l, clk
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	l, clk := newTestLimiter(3, 60)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("door-1"), "request %d", i)
	}
	assert.False(t, l.Allow("door-1"))
	assert.True(t, l.Allow("door-2"), "keys have separate buckets")

	clk.advance(500 * time.Millisecond)
	assert.False(t, l.Allow("door-1"), "half a token is not enough")
	clk.advance(500 * time.Millisecond)
	assert.True(t, l.Allow("door-1"))

	clk.advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("door-1"))
	}
	assert.False(t, l.Allow("door-1"), "refill is capped at capacity")
}

func TestLimiter_DefaultCapacity(t *testing.T) {
	l, _ := newTestLimiter(0, 2)
	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestLimiter_SweepsIdleBuckets(t *testing.T) {
	l, clk := newTestLimiter(2, 60)
	l.Allow("a")
	l.Allow("b")
	assert.Len(t, l.buckets, 2)

	clk.advance(5 * time.Second)
	l.Allow("c")
	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "c")
}

func TestLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(1, 1)
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, call().Code)
	w := call()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"success":false,"error":"rate limit exceeded"}`, w.Body.String())
}

func TestLimiter_DisabledByZeroRate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewLimiter(0, 0, nil)
	assert.Nil(t, l)

	r := gin.New()
	r.Use(l.Middleware())
	r.POST("/api/attendance", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/attendance", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
