package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/openbay/openbay-node/internal/domain"
	"github.com/openbay/openbay-node/internal/id"
)

const (
	tokenIssuer   = "openbay-node"
	tokenAudience = "openbay-client"
)

// SessionClaims are the claims stored in a PASETO session token.
// v4.local tokens are encrypted, so they're not readable without the key.
type SessionClaims struct {
	Alias     string `json:"alias"`
	PublicKey string `json:"pub"`

	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Identity returns the identity carried by the token.
func (c *SessionClaims) Identity() domain.Identity {
	return domain.Identity{Alias: c.Alias, PublicKey: c.PublicKey}
}

// TokenService handles PASETO token generation and verification.
type TokenService struct {
	symmetricKey    paseto.V4SymmetricKey
	sessionDuration time.Duration
	now             func() time.Time
}

// NewTokenService creates a token service from a 32-byte key.
func NewTokenService(key []byte, sessionDuration time.Duration) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyLength, len(key))
	}

	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}

	return &TokenService{
		symmetricKey:    symmetricKey,
		sessionDuration: sessionDuration,
		now:             time.Now,
	}, nil
}

// GenerateSessionToken creates a v4.local token for ident.
func (s *TokenService) GenerateSessionToken(ident domain.Identity) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.sessionDuration)

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(ident.PublicKey)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(expires)

	tokenID, err := id.Generate("token")
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("alias", ident.Alias)
	//nolint:errcheck // Token.Set only errors on invalid types, which we control
	_ = token.Set("pub", ident.PublicKey)

	return token.V4Encrypt(s.symmetricKey, nil), expires, nil
}

// VerifySessionToken verifies and parses a session token.
func (s *TokenService) VerifySessionToken(tokenString string) (*SessionClaims, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.NotExpired())
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims SessionClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if claims.PublicKey == "" {
		return nil, fmt.Errorf("invalid token: missing public key")
	}

	return &claims, nil
}

// SessionDuration returns the configured session lifetime.
func (s *TokenService) SessionDuration() time.Duration {
	return s.sessionDuration
}
