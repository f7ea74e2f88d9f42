package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/audit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// applyRouter serves POST /apply behind the apply limiter. The X-Worker header
// stands in for the auth middleware.
func applyRouter(t *testing.T, cfg RateLimitConfig, auditLog *audit.Logger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/apply", func(c *gin.Context) {
		if id, err := strconv.ParseInt(c.GetHeader("X-Worker"), 10, 64); err == nil {
			c.Set(string(domain.KeyUserID), id)
		}
		c.Next()
	}, RateLimitMiddleware(cfg, auditLog), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return r
}

func post(r *gin.Engine, worker string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/apply", nil)
	req.Header.Set("X-Worker", worker)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestApplyRateLimitInMemory(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	auditLog := audit.NewWithZap(zap.New(core), "test", "test")

	cfg := ApplyRateLimitConfig().WithThreshold(2, time.Minute)
	cfg.KeyPrefix = "rl:apply:test:" + t.Name() + ":"
	r := applyRouter(t, cfg, auditLog)

	for i := 0; i < 2; i++ {
		w := post(r, "7")
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, strconv.Itoa(1-i), w.Header().Get("X-RateLimit-Remaining"))
	}

	w := post(r, "7")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 1, logs.FilterMessage(string(audit.EventRateLimitTriggered)).Len())

	w = post(r, "8")
	assert.Equal(t, http.StatusCreated, w.Code, "another worker has its own budget")
}

func TestInMemoryWindowResets(t *testing.T) {
	cfg := RateLimitConfig{Limit: 1, Window: time.Minute}
	key := "rl:test:" + t.Name()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	count, resetAt := checkRateLimitInMemory(key, cfg, now)
	assert.Equal(t, 1, count)
	assert.Equal(t, now.Add(time.Minute), resetAt)

	count, _ = checkRateLimitInMemory(key, cfg, now.Add(30*time.Second))
	assert.Equal(t, 2, count)

	count, resetAt = checkRateLimitInMemory(key, cfg, now.Add(61*time.Second))
	assert.Equal(t, 1, count)
	assert.Equal(t, now.Add(121*time.Second), resetAt)
}

func TestWithThresholdKeepsKeying(t *testing.T) {
	cfg := ApplyRateLimitConfig().WithThreshold(0, 0)
	assert.Equal(t, 30, cfg.Limit)
	assert.Equal(t, time.Minute, cfg.Window)

	cfg = LoginRateLimitConfig().WithThreshold(3, time.Second)
	assert.Equal(t, 3, cfg.Limit)
	assert.Equal(t, "rl:login:", cfg.KeyPrefix)
	assert.True(t, cfg.FailClosed)
}
