package security

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Session is the authenticated-application identity carried by the signed
// session credential the transport layer exchanges app keys for.
type Session struct {
	AppID  string
	Scopes []string
}

type scopeClaims struct {
	Scopes []string `json:"scopes,omitempty"`
}

// SignSession issues an HS256 JWT for an authenticated application.
func SignSession(secret, appID string, scopes []string, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("session signer: %w", err)
	}

	now := time.Now()
	claims := jwt.Claims{
		Subject:  appID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}

	raw, err := jwt.Signed(signer).
		Claims(claims).
		Claims(scopeClaims{Scopes: scopes}).
		Serialize()
	if err != nil {
		return "", fmt.Errorf("session sign: %w", err)
	}

	return raw, nil
}

// VerifySession validates signature and expiry of a session credential.
func VerifySession(secret, raw string) (*Session, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("session parse: %w", err)
	}

	var claims jwt.Claims
	var scopes scopeClaims
	if err := tok.Claims([]byte(secret), &claims, &scopes); err != nil {
		return nil, fmt.Errorf("session verify: %w", err)
	}

	if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("session expired: %w", err)
	}

	return &Session{AppID: claims.Subject, Scopes: scopes.Scopes}, nil
}
