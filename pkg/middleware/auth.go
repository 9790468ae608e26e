package middleware

import (
	"context"
	"net/http"

	"librix-licensing/pkg/config"
	"librix-licensing/pkg/security"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAccessToken = "x-access-token"
	HeaderConsumerKey = "consumer-key"
	HeaderClientToken = "x-client-token"

	ContextConsumerKey = "consumerKey"
	ContextSession     = "session"
)

// SessionAuth guards operations behind the signed application session.
// Missing headers yield 403, a present but invalid session yields 401.
func SessionAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderAccessToken)
		consumerKey := c.GetHeader(HeaderConsumerKey)

		if token == "" || consumerKey == "" {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		session, err := security.VerifySession(cfg.Session.Secret, token)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(ContextSession, session)
		c.Set(ContextConsumerKey, consumerKey)
		c.Next()
	}
}

// TokenValidator resolves a client token to the consumerKey it belongs to.
type TokenValidator func(ctx context.Context, token string) (string, error)

// ClientTokenAuth guards self-service client operations behind a previously
// issued short-lived token.
func ClientTokenAuth(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(HeaderClientToken)
		if token == "" {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		consumerKey, err := validate(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(ContextConsumerKey, consumerKey)
		c.Next()
	}
}

// ConsumerKey returns the caller identity resolved by the auth middleware.
func ConsumerKey(c *gin.Context) string {
	return c.GetString(ContextConsumerKey)
}
