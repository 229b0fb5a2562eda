package core

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oskar/fitness/internal/model"
	"github.com/oskar/fitness/internal/platform"
)

// AccessTokenTTL is the lifetime of issued access tokens.
const AccessTokenTTL = time.Hour

// AccessClaims are the JWT claims carried by platform access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	Scope    string `json:"scope,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// Token validation failure kinds, used by the validate-and-refresh flow to
// distinguish recoverable expiry from unrecoverable signature problems.
const (
	TokenErrExpired          = "token_expired"
	TokenErrInvalidSignature = "invalid_signature"
	TokenErrMalformed        = "malformed_token"
)

// TokenValidationError reports why an access token failed validation.
type TokenValidationError struct {
	Kind   string
	Detail string
}

func (e *TokenValidationError) Error() string {
	return e.Kind + ": " + e.Detail
}

// TokenService signs and validates RS256 access tokens. The signing key is
// generated once and persisted so tokens survive restarts.
type TokenService struct {
	db     DB
	issuer string

	mu         sync.Mutex
	signingKey *rsa.PrivateKey
	keyID      string
}

func NewTokenService(db DB, issuer string) *TokenService {
	return &TokenService{db: db, issuer: issuer}
}

// EnsureSigningKey loads the active RSA-2048 signing key from the database,
// generating and storing one if none exists.
func (s *TokenService) EnsureSigningKey(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signingKey != nil {
		return nil
	}

	// Check DB for existing active key.
	var k model.SigningKey
	err := s.db.QueryRow(ctx,
		`SELECT id, public_key_pem, private_key_pem FROM signing_keys WHERE active = true LIMIT 1`,
	).Scan(&k.ID, &k.PublicKeyPEM, &k.PrivateKeyPEM)
	if err == nil {
		block, _ := pem.Decode([]byte(k.PrivateKeyPEM))
		if block == nil {
			return fmt.Errorf("token: invalid PEM in signing key %s", k.ID)
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return fmt.Errorf("token: parse private key: %w", err)
		}
		s.signingKey = key
		s.keyID = k.ID
		return nil
	}

	// Generate new key.
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("token: generate RSA key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	})

	id := platform.NewID()
	_, err = s.db.Exec(ctx,
		`INSERT INTO signing_keys (id, algorithm, public_key_pem, private_key_pem, active) VALUES ($1, $2, $3, $4, true)`,
		id, "RS256", string(pubPEM), string(privPEM),
	)
	if err != nil {
		return fmt.Errorf("token: store signing key: %w", err)
	}

	s.signingKey = key
	s.keyID = id
	return nil
}

// JWKS returns the public key in JWK Set format.
func (s *TokenService) JWKS() (json.RawMessage, error) {
	s.mu.Lock()
	key := s.signingKey
	kid := s.keyID
	s.mu.Unlock()

	if key == nil {
		return nil, fmt.Errorf("token: no signing key loaded")
	}

	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": kid,
				"n":   n,
				"e":   e,
			},
		},
	}

	data, err := json.Marshal(jwks)
	if err != nil {
		return nil, fmt.Errorf("token: marshal jwks: %w", err)
	}
	return data, nil
}

// GenerateAccessToken signs a 1-hour access token for a user subject.
func (s *TokenService) GenerateAccessToken(userID, tenantID, clientID, scope string) (string, error) {
	return s.sign(userID, tenantID, clientID, scope)
}

// GenerateClientToken signs a 1-hour access token for the client itself:
// no user subject and no tenant binding.
func (s *TokenService) GenerateClientToken(clientID, scope string) (string, error) {
	return s.sign(clientID, "", clientID, scope)
}

func (s *TokenService) sign(subject, tenantID, clientID, scope string) (string, error) {
	s.mu.Lock()
	key := s.signingKey
	kid := s.keyID
	s.mu.Unlock()

	if key == nil {
		return "", fmt.Errorf("token: no signing key loaded")
	}

	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        platform.NewID(),
		},
		Scope:    scope,
		TenantID: tenantID,
		ClientID: clientID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("token: sign access token: %w", err)
	}
	return signed, nil
}

// ValidateDetailed verifies an access token's signature and expiry, returning
// either its claims or a classified validation error.
func (s *TokenService) ValidateDetailed(tokenStr string) (*AccessClaims, *TokenValidationError) {
	s.mu.Lock()
	key := s.signingKey
	s.mu.Unlock()

	if key == nil {
		return nil, &TokenValidationError{Kind: TokenErrInvalidSignature, Detail: "no signing key loaded"}
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(s.issuer),
	)
	if err == nil {
		return claims, nil
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, &TokenValidationError{Kind: TokenErrExpired, Detail: "access token has expired"}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, &TokenValidationError{Kind: TokenErrMalformed, Detail: "access token is malformed"}
	default:
		return nil, &TokenValidationError{Kind: TokenErrInvalidSignature, Detail: "access token signature is invalid"}
	}
}

// DecodeUnverified extracts claims from a token without verifying the
// signature or expiry. Only used to recover the subject of an expired token;
// the result is never trusted for authorization.
func (s *TokenService) DecodeUnverified(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("token: decode claims: %w", err)
	}
	return claims, nil
}
