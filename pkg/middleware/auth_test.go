package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"librix-licensing/pkg/config"
	"librix-licensing/pkg/errutil"
	"librix-licensing/pkg/security"
)

func init() {
	gin.SetMode(gin.TestMode)
	zap.ReplaceGlobals(zap.NewNop())
}

func sessionTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Session.Secret = "test-session-secret"
	cfg.Session.TTL = time.Hour
	return cfg
}

func sessionRouter(cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(Error(), SessionAuth(cfg))
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"consumerKey": ConsumerKey(c)})
	})
	return r
}

func TestSessionAuthMissingHeaders(t *testing.T) {
	r := sessionRouter(sessionTestConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestSessionAuthInvalidToken(t *testing.T) {
	r := sessionRouter(sessionTestConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(HeaderAccessToken, "not-a-jwt")
	req.Header.Set(HeaderConsumerKey, "consumer-1")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionAuthWrongSecret(t *testing.T) {
	cfg := sessionTestConfig()
	r := sessionRouter(cfg)

	forged, err := security.SignSession("other-secret", "app-1", nil, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(HeaderAccessToken, forged)
	req.Header.Set(HeaderConsumerKey, "consumer-1")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionAuthResolvesConsumerKey(t *testing.T) {
	cfg := sessionTestConfig()
	r := sessionRouter(cfg)

	session, err := security.SignSession(cfg.Session.Secret, "app-1", []string{"client"}, time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(HeaderAccessToken, session)
	req.Header.Set(HeaderConsumerKey, "consumer-1")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "consumer-1")
}

func clientTokenRouter(validate TokenValidator) *gin.Engine {
	r := gin.New()
	r.Use(Error(), ClientTokenAuth(validate))
	r.PUT("/client", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"consumerKey": ConsumerKey(c)})
	})
	return r
}

func TestClientTokenAuthMissingHeader(t *testing.T) {
	r := clientTokenRouter(func(context.Context, string) (string, error) {
		t.Fatal("validator must not run without a token header")
		return "", nil
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/client", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestClientTokenAuthRejectedToken(t *testing.T) {
	r := clientTokenRouter(func(context.Context, string) (string, error) {
		return "", errutil.NotFound("Token not found.", nil)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/client", nil)
	req.Header.Set(HeaderClientToken, "expired-token")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "Token not found.")
}

func TestClientTokenAuthResolvesConsumerKey(t *testing.T) {
	r := clientTokenRouter(func(_ context.Context, token string) (string, error) {
		require.Equal(t, "valid-token", token)
		return "consumer-1", nil
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/client", nil)
	req.Header.Set(HeaderClientToken, "valid-token")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "consumer-1")
}
