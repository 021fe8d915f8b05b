package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/services"
	"github.com/cppla/socialbbs/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterBurst(t *testing.T) {
	l := NewRateLimiter(4)
	now := time.Now()

	assert.True(t, l.Allow("a", now))
	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now))
	assert.True(t, l.Allow("b", now))

	// one token every 15s
	assert.True(t, l.Allow("a", now.Add(16*time.Second)))
}

func TestRateLimiterMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(1).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAuthenticator(t *testing.T) {
	auth := NewAuthenticator("s3cret", []string{" Root "})
	var seen access.Actor
	r := gin.New()
	r.GET("/opt", auth.OptionalAuth(), func(c *gin.Context) { seen = ActorFrom(c) })
	r.GET("/req", auth.AuthRequired(), func(c *gin.Context) { seen = ActorFrom(c) })

	call := func(path, token string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("/opt", ""))
	assert.True(t, seen.IsAnonymous())
	assert.Equal(t, http.StatusUnauthorized, call("/req", ""))

	token, err := utils.GenerateToken("s3cret", 7, "root", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call("/req", token))
	assert.Equal(t, access.Actor{ID: 7, Username: "root", Admin: true}, seen)

	forged, err := utils.GenerateToken("other", 7, "root", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("/opt", forged))

	expired, err := utils.GenerateToken("s3cret", 7, "root", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("/req", expired))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var got string
	r.GET("/", func(c *gin.Context) { got = c.GetString(utils.RequestIDKey) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, got, 36)
	assert.Equal(t, got, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", got)
}

func TestActivityFlushesAfterRequest(t *testing.T) {
	tracker := services.NewMemoryTracker()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	r := gin.New()
	r.Use(Activity(tracker))
	r.GET("/", func(c *gin.Context) {
		act := services.ActivityFrom(c.Request.Context())
		require.NotNil(t, act)
		act.Mark(3, services.ActionViewing, at)

		_, ok, _ := tracker.LastSeen(c.Request.Context(), 3, services.ActionViewing)
		assert.False(t, ok)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	got, ok, err := tracker.LastSeen(context.Background(), 3, services.ActionViewing)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)
}
