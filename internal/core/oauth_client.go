package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/oskar/fitness/internal/crypto"
	"github.com/oskar/fitness/internal/model"
	"github.com/oskar/fitness/internal/platform"
)

// Out-of-band redirect URI for native apps (RFC 8252).
const oobRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

// clientLifetime is how long a registered client stays valid.
const clientLifetime = 365 * 24 * time.Hour

// DefaultRegistrationScope is advertised in the registration response when
// the request names no scope. It is never stored: a client registered
// without a scope keeps an empty allow-list and is not restricted at
// authorization time.
const DefaultRegistrationScope = "fitness:read activities:read profile:read"

var supportedGrantTypes = map[string]bool{
	model.GrantAuthorizationCode: true,
	model.GrantClientCredentials: true,
	model.GrantRefreshToken:      true,
}

var supportedResponseTypes = map[string]bool{
	model.ResponseTypeCode: true,
}

// OAuthClientService manages dynamically registered OAuth clients (RFC 7591).
type OAuthClientService struct {
	db     DB
	logger zerolog.Logger
}

func NewOAuthClientService(db DB, logger zerolog.Logger) *OAuthClientService {
	return &OAuthClientService{db: db, logger: logger}
}

// RegisterClientParams holds the validated-to-be fields of a registration request.
type RegisterClientParams struct {
	RedirectURIs  []string
	GrantTypes    []string
	ResponseTypes []string
	ClientName    string
	ClientURI     string
	Scope         string
}

// Register validates the registration request, generates credentials, and
// persists the client with an Argon2id hash of the secret. The plaintext
// secret is returned exactly once and never stored or logged.
func (s *OAuthClientService) Register(ctx context.Context, params RegisterClientParams) (*model.OAuthClient, string, error) {
	if err := validateRegistration(params); err != nil {
		return nil, "", err
	}

	clientID := platform.NewClientID()

	secret, err := platform.RandomSecret(32)
	if err != nil {
		s.logger.Error().Err(err).Msg("system RNG failure while generating client secret")
		return nil, "", serverError("Secure random generation failed")
	}

	secretHash, err := crypto.HashSecret(secret)
	if err != nil {
		s.logger.Error().Err(err).Msg("argon2id hashing failed for client secret")
		return nil, "", serverError("Secret hashing failed")
	}

	// Default to authorization_code only: client_credentials is never
	// granted implicitly.
	grantTypes := params.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{model.GrantAuthorizationCode}
	}
	responseTypes := params.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{model.ResponseTypeCode}
	}
	now := time.Now()
	expiresAt := now.Add(clientLifetime)

	client := &model.OAuthClient{
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		RedirectURIs:     params.RedirectURIs,
		GrantTypes:       grantTypes,
		ResponseTypes:    responseTypes,
		ClientName:       params.ClientName,
		ClientURI:        params.ClientURI,
		Scope:            params.Scope,
		CreatedAt:        now,
		ExpiresAt:        &expiresAt,
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO oauth_clients (client_id, client_secret_hash, redirect_uris, grant_types, response_types, client_name, client_uri, scope, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		client.ClientID, client.ClientSecretHash, client.RedirectURIs, client.GrantTypes,
		client.ResponseTypes, client.ClientName, client.ClientURI, client.Scope,
		client.CreatedAt, client.ExpiresAt,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("failed to store oauth client")
		return nil, "", serverError("Failed to store client registration")
	}

	s.logger.Info().Str("client_id", clientID).Strs("grant_types", grantTypes).Msg("oauth client registered")
	return client, secret, nil
}

// Validate authenticates a client by id and secret, then checks expiry.
// Every failure collapses to the same generic invalid_client error so the
// endpoint cannot be used as a client-existence or failure-reason oracle.
func (s *OAuthClientService) Validate(ctx context.Context, clientID, clientSecret string) (*model.OAuthClient, error) {
	client, err := s.GetByID(ctx, clientID)
	if err != nil || client == nil {
		s.logger.Warn().Str("client_id", clientID).Msg("client authentication failed: unknown client")
		return nil, invalidClient()
	}

	if !crypto.VerifySecret(clientSecret, client.ClientSecretHash) {
		s.logger.Warn().Str("client_id", clientID).Msg("client authentication failed: secret mismatch")
		return nil, invalidClient()
	}

	if client.ExpiresAt != nil && time.Now().After(*client.ExpiresAt) {
		s.logger.Warn().Str("client_id", clientID).Msg("client authentication failed: registration expired")
		return nil, invalidClient()
	}

	return client, nil
}

// GetByID looks up a client without authenticating it.
func (s *OAuthClientService) GetByID(ctx context.Context, clientID string) (*model.OAuthClient, error) {
	var c model.OAuthClient
	err := s.db.QueryRow(ctx,
		`SELECT client_id, client_secret_hash, redirect_uris, grant_types, response_types, client_name, client_uri, scope, created_at, expires_at
		 FROM oauth_clients WHERE client_id = $1`, clientID,
	).Scan(&c.ClientID, &c.ClientSecretHash, &c.RedirectURIs, &c.GrantTypes,
		&c.ResponseTypes, &c.ClientName, &c.ClientURI, &c.Scope, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get oauth client: %w", err)
	}
	return &c, nil
}

func validateRegistration(params RegisterClientParams) error {
	if len(params.RedirectURIs) == 0 {
		return invalidRequest("At least one redirect_uri is required")
	}
	for _, uri := range params.RedirectURIs {
		if !isValidRedirectURI(uri) {
			return invalidRequest(fmt.Sprintf("Invalid redirect_uri: %s", uri))
		}
	}
	for _, g := range params.GrantTypes {
		if !supportedGrantTypes[g] {
			return invalidRequest(fmt.Sprintf("Unsupported grant_type: %s", g))
		}
	}
	for _, r := range params.ResponseTypes {
		if !supportedResponseTypes[r] {
			return invalidRequest(fmt.Sprintf("Unsupported response_type: %s", r))
		}
	}
	return nil
}

// isValidRedirectURI enforces RFC 6749 section 3.1.2 plus the OAuth security
// BCP: absolute, no fragments, no wildcards, https only except for loopback
// hosts, with the out-of-band URN allowed for native apps.
func isValidRedirectURI(uri string) bool {
	if strings.TrimSpace(uri) == "" {
		return false
	}
	if strings.Contains(uri, "#") {
		return false
	}
	if strings.Contains(uri, "*") {
		return false
	}
	if uri == oobRedirectURI {
		return true
	}

	parsed, err := url.Parse(uri)
	if err != nil || !parsed.IsAbs() {
		return false
	}

	host := parsed.Hostname()
	isLoopback := host == "localhost" || host == "127.0.0.1"

	switch parsed.Scheme {
	case "https":
		return true
	case "http":
		return isLoopback
	}
	return false
}
