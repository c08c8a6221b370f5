package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitLocalFallback(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{PerSecond: 1, Burst: 1}))
	r.GET("/auth/github", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/auth/github", nil)
		req.RemoteAddr = ip + ":1234"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusNoContent, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	assert.Equal(t, http.StatusNoContent, send("198.51.100.2"), "limits are per client")
}

func TestRateLimitHonorsConfiguredBurst(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{PerSecond: 10, Burst: 5}))
	r.GET("/auth/github", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 6)
	for range 6 {
		req := httptest.NewRequest(http.MethodGet, "/auth/github", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	for i := range 5 {
		assert.Equalf(t, http.StatusNoContent, codes[i], "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, codes[5], "burst is not raised above the configured value")
}
