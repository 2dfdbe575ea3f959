// Package session implements the Session & Quota Store's session half:
// JWT access-token issuance and single-use refresh-token rotation,
// backed by Redis so rotation state survives across aura-core replicas.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload carried by an Aura access token.
type Claims struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates access tokens and mints opaque refresh
// token material. It holds no state of its own — rotation bookkeeping
// lives in Store.
type TokenIssuer struct {
	secret         []byte
	accessTokenTTL time.Duration
	issuer         string
}

// SigningKey returns the raw HMAC key, for wiring into the HTTP
// transport's JWT middleware so it verifies with the same secret this
// issuer signs with.
func (ti *TokenIssuer) SigningKey() []byte { return ti.secret }

// NewTokenIssuer creates a TokenIssuer signing with secret.
func NewTokenIssuer(secret string, accessTokenTTL time.Duration, issuer string) *TokenIssuer {
	return &TokenIssuer{
		secret:         []byte(secret),
		accessTokenTTL: accessTokenTTL,
		issuer:         issuer,
	}
}

// IssueAccessToken signs a short-lived JWT bound to sessionID.
func (ti *TokenIssuer) IssueAccessToken(tenantID, userID, sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ti.accessTokenTTL)
	claims := Claims{
		TenantID:  tenantID,
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    ti.issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken parses and verifies an access token, rejecting
// anything signed with an unexpected method or already expired.
func (ti *TokenIssuer) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// newOpaqueToken returns 32 random bytes, URL-safe base64 encoded — the
// bearer form of a refresh token. Only its hash is ever persisted.
func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
