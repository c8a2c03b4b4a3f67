package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"lulufarm/internal/config"
)

func TestRateLimit_PassThroughWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil))
	router.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bookings", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got string
	router := gin.New()
	router.POST("/bookings/:id", func(c *gin.Context) {
		got = rateKey(config.RateLimitConfig{Prefix: "lulufarm:rl", KeyStrategy: "ip_route", TTL: time.Minute}, c)
	})
	req := httptest.NewRequest(http.MethodPost, "/bookings/42", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "lulufarm:rl:ip:10.0.0.7:route:POST /bookings/:id", got)
}

func TestAsInt64(t *testing.T) {
	assert.Equal(t, int64(3), asInt64(int64(3)))
	assert.Equal(t, int64(7), asInt64("7"))
	assert.Equal(t, int64(0), asInt64(nil))
}
