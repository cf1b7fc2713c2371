package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": RequestID(c), "subject": Subject(c)})
	})
	return r
}

func get(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signed(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestLoggerAssignsRequestID(t *testing.T) {
	w := get(newEngine(Logger()), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}

func TestLoggerKeepsCallerRequestID(t *testing.T) {
	w := get(newEngine(Logger()), map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"request_id":"abc-123"`)
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	w := get(newEngine(Auth("")), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	w := get(newEngine(Auth("s3cret")), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing bearer token")
}

func TestAuthAcceptsValidToken(t *testing.T) {
	token := signed(t, "s3cret", jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "analyst",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w := get(newEngine(Auth("s3cret")), map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subject":"analyst"`)
}

func TestAuthRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"wrong secret": signed(t, "other", jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}),
		"wrong method": signed(t, "s3cret", jwt.SigningMethodHS512, jwt.MapClaims{"sub": "x"}),
		"expired":      signed(t, "s3cret", jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}),
		"garbage":      "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			w := get(newEngine(Auth("s3cret")), map[string]string{"Authorization": "Bearer " + token})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"))
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newEngine(RateLimit(0.001, 1))

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	w := get(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"code":429`)
}

func TestRateLimitDisabled(t *testing.T) {
	r := newEngine(RateLimit(0, 0))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, nil).Code)
	}
}
