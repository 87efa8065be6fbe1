package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func serve(h gin.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/x", h, func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLocalhostOnly(t *testing.T) {
	l := NewLocalhostOnly(quietLogger(), []string{"10.1.0.0/16", "203.0.113.7", "not-an-ip", "10.0.0.0/99"})

	cases := []struct {
		remote string
		status int
	}{
		{"127.0.0.1:5000", http.StatusOK},
		{"[::1]:5000", http.StatusOK},
		{"10.1.200.3:5000", http.StatusOK},
		{"203.0.113.7:5000", http.StatusOK},
		{"203.0.113.8:5000", http.StatusForbidden},
		{"10.2.0.1:5000", http.StatusForbidden},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, serve(l.Restrict(), tc.remote).Code, tc.remote)
	}
}

func TestLocalhostOnly_EmptyListIsLoopbackOnly(t *testing.T) {
	l := NewLocalhostOnly(quietLogger(), nil)
	assert.Equal(t, http.StatusOK, serve(l.Restrict(), "127.0.0.1:1").Code)
	assert.Equal(t, http.StatusForbidden, serve(l.Restrict(), "192.0.2.1:1").Code)
}

func TestIPRateLimiter(t *testing.T) {
	rl := NewIPRateLimiter(1, 3, quietLogger())
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("192.0.2.1"), "burst request %d", i)
	}
	assert.False(t, rl.Allow("192.0.2.1"))
	assert.True(t, rl.Allow("192.0.2.2"), "buckets are per IP")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("192.0.2.1"), "one token refills per second")

	assert.Equal(t, 2, rl.Len())
	now = now.Add(11 * time.Minute)
	assert.Equal(t, 2, rl.Sweep())
	assert.Equal(t, 0, rl.Len())
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	rl := NewIPRateLimiter(0.001, 1, quietLogger())
	assert.Equal(t, http.StatusOK, serve(rl.Middleware(), "192.0.2.9:1").Code)

	w := serve(rl.Middleware(), "192.0.2.9:1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Rate limit exceeded. Please try again later."}`, w.Body.String())
}

func TestIPRateLimiter_Disabled(t *testing.T) {
	rl := NewIPRateLimiter(0, 0, quietLogger())
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("192.0.2.1"))
	}
	assert.Equal(t, 0, rl.Len())
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	w := serve(RequestLogger(quietLogger()), "192.0.2.1:1")
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	r := gin.New()
	r.GET("/x", RequestLogger(quietLogger()), func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	id := uuid.NewString()
	req.Header.Set(RequestIDHeader, id)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))
}
