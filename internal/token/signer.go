// Package token implements access-token signing and refresh-token minting.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/yerlan/authgate/internal/config"
)

// ErrInvalidToken is returned when a token fails signature or claim validation.
var ErrInvalidToken = errors.New("invalid access token")

// reserved claim names the signer manages itself; Extra entries may not shadow them.
var reservedClaims = map[string]struct{}{
	"sub": {}, "jti": {}, "email": {}, "uid": {}, "roles": {},
	"iss": {}, "aud": {}, "iat": {}, "exp": {},
}

// Claims is the identity payload carried by an access token.
type Claims struct {
	Subject string
	TokenID string
	Email   string
	UserID  string
	Roles   []string
	Extra   map[string]string
}

// Signer produces and validates HMAC-SHA256 signed access tokens.
// It holds no mutable state; given a fixed key and clock its output is
// deterministic up to the generated token ID.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
	lifetime time.Duration
	nowFunc  func() time.Time
	parser   *jwt.Parser
}

// NewSigner creates a Signer using the wall clock.
func NewSigner(cfg config.AuthConfig) *Signer {
	return NewSignerWithClock(cfg, time.Now)
}

// NewSignerWithClock creates a Signer with an injected clock for deterministic expiry.
func NewSignerWithClock(cfg config.AuthConfig, now func() time.Time) *Signer {
	return &Signer{
		secret:   []byte(cfg.SecretKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		lifetime: cfg.AccessTokenTTL(),
		nowFunc:  now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithTimeFunc(now),
		),
	}
}

// Sign issues a signed token for the claims, returning the token and its expiry.
// Expiry is issuance time plus the configured lifetime.
func (s *Signer) Sign(c Claims) (string, time.Time, error) {
	now := s.nowFunc()
	expiresAt := now.Add(s.lifetime)

	tokenID := c.TokenID
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	mapClaims := jwt.MapClaims{
		"sub":   c.Subject,
		"jti":   tokenID,
		"email": c.Email,
		"uid":   c.UserID,
		"roles": c.Roles,
		"iss":   s.issuer,
		"aud":   s.audience,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}

	for key, value := range c.Extra {
		if _, taken := reservedClaims[key]; taken {
			return "", time.Time{}, fmt.Errorf("extra claim %q shadows a reserved claim", key)
		}
		mapClaims[key] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse verifies signature, issuer, audience and expiry, and extracts the claims.
func (s *Signer) Parse(tokenString string) (Claims, error) {
	parsed, err := s.parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	sub, ok := mapClaims["sub"].(string)
	if !ok || sub == "" {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{Subject: sub}
	claims.TokenID, _ = mapClaims["jti"].(string)
	claims.Email, _ = mapClaims["email"].(string)
	claims.UserID, _ = mapClaims["uid"].(string)

	if rawRoles, ok := mapClaims["roles"].([]interface{}); ok {
		for _, raw := range rawRoles {
			if role, ok := raw.(string); ok {
				claims.Roles = append(claims.Roles, role)
			}
		}
	}

	for key, value := range mapClaims {
		if _, taken := reservedClaims[key]; taken {
			continue
		}
		if str, ok := value.(string); ok {
			if claims.Extra == nil {
				claims.Extra = make(map[string]string)
			}
			claims.Extra[key] = str
		}
	}

	return claims, nil
}
