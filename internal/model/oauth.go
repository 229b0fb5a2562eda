package model

import "time"

// Supported OAuth 2.0 grant and response types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"

	ResponseTypeCode = "code"
)

// OAuthClient is a dynamically registered OAuth 2.0 client (RFC 7591).
// The client secret is only ever stored as an Argon2id hash.
type OAuthClient struct {
	ClientID         string     `json:"client_id" db:"client_id"`
	ClientSecretHash string     `json:"-" db:"client_secret_hash"`
	RedirectURIs     []string   `json:"redirect_uris" db:"redirect_uris"`
	GrantTypes       []string   `json:"grant_types" db:"grant_types"`
	ResponseTypes    []string   `json:"response_types" db:"response_types"`
	ClientName       string     `json:"client_name,omitempty" db:"client_name"`
	ClientURI        string     `json:"client_uri,omitempty" db:"client_uri"`
	Scope            string     `json:"scope,omitempty" db:"scope"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// HasGrantType reports whether the client is registered for the grant type.
func (c *OAuthClient) HasGrantType(grantType string) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// HasResponseType reports whether the client is registered for the response type.
func (c *OAuthClient) HasResponseType(responseType string) bool {
	for _, r := range c.ResponseTypes {
		if r == responseType {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (c *OAuthClient) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AuthCode is a single-use authorization code. Consumption is atomic: the
// storage layer validates client_id, redirect_uri, expiry, and the used flag
// while marking the code used in one statement.
type AuthCode struct {
	Code                string    `json:"code" db:"code"`
	ClientID            string    `json:"client_id" db:"client_id"`
	UserID              string    `json:"user_id" db:"user_id"`
	TenantID            string    `json:"tenant_id" db:"tenant_id"`
	RedirectURI         string    `json:"redirect_uri" db:"redirect_uri"`
	Scope               string    `json:"scope" db:"scope"`
	State               string    `json:"state" db:"state"`
	CodeChallenge       string    `json:"code_challenge" db:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method" db:"code_challenge_method"`
	ExpiresAt           time.Time `json:"expires_at" db:"expires_at"`
	Used                bool      `json:"used" db:"used"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// CSRFState mirrors the authorization request for server-side state
// validation at exchange time. It has its own single-use lifecycle,
// independent of the authorization code.
type CSRFState struct {
	State         string    `json:"state" db:"state"`
	ClientID      string    `json:"client_id" db:"client_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	RedirectURI   string    `json:"redirect_uri" db:"redirect_uri"`
	Scope         string    `json:"scope" db:"scope"`
	CodeChallenge string    `json:"code_challenge" db:"code_challenge"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	Used          bool      `json:"used" db:"used"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// RefreshToken is an opaque 256-bit random token. A successful refresh grant
// consumes the old token and mints a replacement (rotation).
type RefreshToken struct {
	Token     string    `json:"token" db:"token"`
	ClientID  string    `json:"client_id" db:"client_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Scope     string    `json:"scope" db:"scope"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SigningKey is the persisted RSA key pair used to sign access tokens.
type SigningKey struct {
	ID            string    `json:"id" db:"id"`
	Algorithm     string    `json:"algorithm" db:"algorithm"`
	PublicKeyPEM  string    `json:"public_key_pem" db:"public_key_pem"`
	PrivateKeyPEM string    `json:"private_key_pem" db:"private_key_pem"`
	Active        bool      `json:"active" db:"active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
