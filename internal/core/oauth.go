package core

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oskar/fitness/internal/model"
	"github.com/oskar/fitness/internal/pkce"
	"github.com/oskar/fitness/internal/platform"
)

const (
	// AuthCodeTTL is how long an authorization code stays redeemable.
	AuthCodeTTL = 10 * time.Minute
	// StateTTL bounds the window between issuing an authorization code and
	// exchanging it with the matching state value.
	StateTTL = 10 * time.Minute
	// RefreshTokenTTL is the lifetime of refresh tokens.
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// Validation statuses returned by ValidateAndRefresh.
const (
	ValidationStatusValid     = "valid"
	ValidationStatusRefreshed = "refreshed"
	ValidationStatusInvalid   = "invalid"
)

// OAuthService implements the authorization-code, client-credentials, and
// refresh-token grants on top of the client registry and token signer.
type OAuthService struct {
	db      DB
	clients *OAuthClientService
	tokens  *TokenService
	tenants *TenantService
	users   *UserService
	logger  zerolog.Logger
}

func NewOAuthService(db DB, clients *OAuthClientService, tokens *TokenService, tenants *TenantService, users *UserService, logger zerolog.Logger) *OAuthService {
	return &OAuthService{
		db:      db,
		clients: clients,
		tokens:  tokens,
		tenants: tenants,
		users:   users,
		logger:  logger,
	}
}

// AuthorizeParams carries an authorization request from an authenticated
// user session.
type AuthorizeParams struct {
	ClientID            string
	ResponseType        string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              string
	TenantID            string
}

// AuthorizeResult is a minted authorization code ready to be delivered via
// redirect (or displayed, for the out-of-band redirect URI).
type AuthorizeResult struct {
	Code        string
	State       string
	RedirectURI string
}

// TokenResponse is the token endpoint success body (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Authorize validates an authorization request and mints a single-use code
// bound to the client, redirect URI, user, tenant, and PKCE challenge.
func (s *OAuthService) Authorize(ctx context.Context, p AuthorizeParams) (*AuthorizeResult, error) {
	client, err := s.clients.GetByID(ctx, p.ClientID)
	if err != nil {
		return nil, serverError("failed to load client")
	}
	if client == nil {
		return nil, invalidClient()
	}
	if client.ExpiresAt != nil && time.Now().After(*client.ExpiresAt) {
		return nil, invalidRequest("Client registration has expired")
	}

	if p.ResponseType != model.ResponseTypeCode {
		return nil, invalidRequest("Unsupported response_type, only 'code' is supported")
	}
	if !client.HasResponseType(p.ResponseType) {
		return nil, unauthorizedClient("Client is not registered for the 'code' response type")
	}

	scope := p.Scope
	if scope == "" {
		scope = client.Scope
	} else if !scopeSubset(scope, client.Scope) {
		return nil, invalidScope("Requested scope exceeds the client's registered scope")
	}

	if p.RedirectURI == "" {
		return nil, invalidRequest("redirect_uri is required")
	}
	if !client.HasRedirectURI(p.RedirectURI) {
		return nil, invalidRequest("redirect_uri does not match a registered redirect URI")
	}

	if p.CodeChallenge == "" {
		return nil, invalidRequest("code_challenge is required")
	}
	if err := pkce.ValidateMethod(p.CodeChallengeMethod); err != nil {
		return nil, invalidRequest(err.Error())
	}
	if err := pkce.ValidateChallenge(p.CodeChallenge); err != nil {
		return nil, invalidRequest(err.Error())
	}

	if p.UserID == "" {
		return nil, invalidRequest("Authorization requires an authenticated user")
	}

	tenantID, oerr := s.resolveTenant(ctx, p.UserID, p.TenantID)
	if oerr != nil {
		return nil, oerr
	}

	code, err := platform.RandomToken(32)
	if err != nil {
		return nil, serverError("failed to generate authorization code")
	}

	now := time.Now()
	ac := &model.AuthCode{
		Code:                code,
		ClientID:            client.ClientID,
		UserID:              p.UserID,
		TenantID:            tenantID,
		RedirectURI:         p.RedirectURI,
		Scope:               scope,
		State:               p.State,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: pkce.MethodS256,
		ExpiresAt:           now.Add(AuthCodeTTL),
	}
	if err := s.storeAuthCode(ctx, ac); err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ClientID).Msg("failed to store authorization code")
		return nil, serverError("failed to store authorization code")
	}

	if p.State != "" {
		st := &model.CSRFState{
			State:         p.State,
			ClientID:      client.ClientID,
			UserID:        p.UserID,
			TenantID:      tenantID,
			RedirectURI:   p.RedirectURI,
			Scope:         scope,
			CodeChallenge: p.CodeChallenge,
			ExpiresAt:     now.Add(StateTTL),
		}
		if err := s.storeState(ctx, st); err != nil {
			s.logger.Error().Err(err).Str("client_id", client.ClientID).Msg("failed to store state")
			return nil, serverError("failed to store state")
		}
	}

	s.logger.Info().
		Str("client_id", client.ClientID).
		Str("user_id", p.UserID).
		Str("tenant_id", tenantID).
		Msg("authorization code issued")

	return &AuthorizeResult{Code: code, State: p.State, RedirectURI: p.RedirectURI}, nil
}

// resolveTenant picks the tenant an authorization applies to. An explicit
// tenant must be one the user belongs to; without one, the user's oldest
// membership wins. Users with no memberships cannot authorize.
func (s *OAuthService) resolveTenant(ctx context.Context, userID, tenantID string) (string, error) {
	if tenantID != "" {
		ok, err := s.tenants.IsMember(ctx, tenantID, userID)
		if err != nil {
			return "", serverError("failed to check tenant membership")
		}
		if !ok {
			return "", invalidRequest("User is not a member of the requested tenant")
		}
		return tenantID, nil
	}

	memberships, err := s.tenants.ListMembershipsForUser(ctx, userID)
	if err != nil {
		return "", serverError("failed to list tenant memberships")
	}
	if len(memberships) == 0 {
		return "", invalidRequest("User does not belong to any tenant")
	}
	return memberships[0].TenantID, nil
}

// TokenParams carries a token endpoint request.
type TokenParams struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// Token authenticates the client and dispatches on grant type. Client
// credentials are required for every grant, including refresh.
func (s *OAuthService) Token(ctx context.Context, p TokenParams) (*TokenResponse, error) {
	if p.GrantType == "" {
		return nil, invalidRequest("grant_type is required")
	}

	client, err := s.clients.Validate(ctx, p.ClientID, p.ClientSecret)
	if err != nil {
		return nil, err
	}

	switch p.GrantType {
	case model.GrantAuthorizationCode:
		if !client.HasGrantType(model.GrantAuthorizationCode) {
			return nil, unauthorizedClient("Client is not registered for the authorization_code grant")
		}
		return s.tokenAuthorizationCode(ctx, client, p)
	case model.GrantClientCredentials:
		if !client.HasGrantType(model.GrantClientCredentials) {
			return nil, unauthorizedClient("Client is not registered for the client_credentials grant")
		}
		return s.tokenClientCredentials(ctx, client, p)
	case model.GrantRefreshToken:
		// Clients registered for the authorization code grant may refresh the
		// tokens that grant produced without listing refresh_token explicitly.
		if !client.HasGrantType(model.GrantRefreshToken) && !client.HasGrantType(model.GrantAuthorizationCode) {
			return nil, unauthorizedClient("Client is not registered for the refresh_token grant")
		}
		return s.tokenRefresh(ctx, client, p)
	default:
		return nil, unsupportedGrantType()
	}
}

func (s *OAuthService) tokenAuthorizationCode(ctx context.Context, client *model.OAuthClient, p TokenParams) (*TokenResponse, error) {
	if p.Code == "" {
		return nil, invalidRequest("code is required")
	}
	if p.RedirectURI == "" {
		return nil, invalidRequest("redirect_uri is required")
	}

	ac, err := s.consumeAuthCode(ctx, p.Code, client.ClientID, p.RedirectURI)
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ClientID).Msg("auth code consumption failed")
		return nil, serverError("failed to redeem authorization code")
	}
	if ac == nil {
		s.logger.Warn().Str("client_id", client.ClientID).Msg("invalid or replayed authorization code")
		return nil, invalidGrant("Invalid or expired authorization code")
	}

	// The code is spent at this point. A state or PKCE failure below does not
	// resurrect it; the client must restart the authorization flow.
	// The state bound to the code at authorize time is consumed server side;
	// the client does not echo it in the token request.
	if ac.State != "" {
		ok, err := s.consumeState(ctx, ac.State, client.ClientID)
		if err != nil {
			s.logger.Error().Err(err).Str("client_id", client.ClientID).Msg("state consumption failed")
			return nil, serverError("failed to validate state")
		}
		if !ok {
			s.logger.Warn().Str("client_id", client.ClientID).Msg("state replay or expiry at token exchange")
			return nil, invalidGrant("Invalid state parameter - possible CSRF attack detected")
		}
	}

	if oerr := verifyPKCE(ac, p.CodeVerifier); oerr != nil {
		s.logger.Warn().Str("client_id", client.ClientID).Str("error", oerr.Code).Msg("PKCE verification failed")
		return nil, oerr
	}

	return s.issueTokens(ctx, client.ClientID, ac.UserID, ac.TenantID, ac.Scope)
}

// verifyPKCE checks the code verifier against the challenge the code was
// issued with. Runs after consumption so a failed attempt still burns the code.
func verifyPKCE(ac *model.AuthCode, verifier string) *OAuthError {
	if ac.CodeChallenge == "" {
		if verifier != "" {
			return invalidGrant("code_verifier provided but no code_challenge was registered")
		}
		return nil
	}
	if verifier == "" {
		return invalidGrant("code_verifier is required")
	}
	if err := pkce.ValidateVerifier(verifier); err != nil {
		return invalidGrant(err.Error())
	}
	if !pkce.VerifyS256(verifier, ac.CodeChallenge) {
		return invalidGrant("Invalid code_verifier")
	}
	return nil
}

func (s *OAuthService) tokenClientCredentials(ctx context.Context, client *model.OAuthClient, p TokenParams) (*TokenResponse, error) {
	scope := p.Scope
	if scope == "" {
		scope = client.Scope
	} else if !scopeSubset(scope, client.Scope) {
		return nil, invalidScope("Requested scope exceeds the client's registered scope")
	}

	access, err := s.tokens.GenerateClientToken(client.ClientID, scope)
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ClientID).Msg("client token generation failed")
		return nil, serverError("failed to generate access token")
	}

	s.logger.Info().Str("client_id", client.ClientID).Msg("client credentials token issued")
	return &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(AccessTokenTTL.Seconds()),
		Scope:       scope,
	}, nil
}

func (s *OAuthService) tokenRefresh(ctx context.Context, client *model.OAuthClient, p TokenParams) (*TokenResponse, error) {
	if p.RefreshToken == "" {
		return nil, invalidRequest("refresh_token is required")
	}

	rt, err := s.consumeRefreshToken(ctx, p.RefreshToken, client.ClientID)
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ClientID).Msg("refresh token consumption failed")
		return nil, serverError("failed to redeem refresh token")
	}
	if rt == nil {
		s.logger.Warn().Str("client_id", client.ClientID).Msg("invalid or replayed refresh token")
		return nil, invalidGrant("Invalid or expired refresh token")
	}

	scope := rt.Scope
	if p.Scope != "" {
		if !scopeSubset(p.Scope, rt.Scope) {
			return nil, invalidScope("Requested scope exceeds the original grant")
		}
		scope = p.Scope
	}

	return s.issueTokens(ctx, client.ClientID, rt.UserID, rt.TenantID, scope)
}

// issueTokens mints a fresh access token and refresh token pair.
func (s *OAuthService) issueTokens(ctx context.Context, clientID, userID, tenantID, scope string) (*TokenResponse, error) {
	access, err := s.tokens.GenerateAccessToken(userID, tenantID, clientID, scope)
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("access token generation failed")
		return nil, serverError("failed to generate access token")
	}

	refresh, err := platform.RandomToken(32)
	if err != nil {
		return nil, serverError("failed to generate refresh token")
	}
	rt := &model.RefreshToken{
		Token:     refresh,
		ClientID:  clientID,
		UserID:    userID,
		TenantID:  tenantID,
		Scope:     scope,
		ExpiresAt: time.Now().Add(RefreshTokenTTL),
	}
	if err := s.storeRefreshToken(ctx, rt); err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("failed to store refresh token")
		return nil, serverError("failed to store refresh token")
	}

	s.logger.Info().
		Str("client_id", clientID).
		Str("user_id", userID).
		Str("tenant_id", tenantID).
		Msg("tokens issued")

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
		RefreshToken: refresh,
		Scope:        scope,
	}, nil
}

// ValidationResult is the outcome of a validate-and-refresh call.
type ValidationResult struct {
	Status             string `json:"status"`
	AccessToken        string `json:"access_token,omitempty"`
	RefreshToken       string `json:"refresh_token,omitempty"`
	TokenType          string `json:"token_type,omitempty"`
	ExpiresIn          int64  `json:"expires_in,omitempty"`
	UserID             string `json:"user_id,omitempty"`
	TenantID           string `json:"tenant_id,omitempty"`
	Scope              string `json:"scope,omitempty"`
	Reason             string `json:"reason,omitempty"`
	RequiresFullReauth bool   `json:"requires_full_reauth,omitempty"`
}

// ValidateAndRefresh checks an access token and, when it has expired and a
// live refresh token is presented, transparently mints a replacement access
// token. The presented refresh token stays valid and is echoed back; rotation
// only happens through the token endpoint's refresh grant.
func (s *OAuthService) ValidateAndRefresh(ctx context.Context, accessToken, refreshToken string) (*ValidationResult, error) {
	claims, verr := s.tokens.ValidateDetailed(accessToken)
	if verr == nil {
		return s.validationForLiveToken(ctx, claims)
	}

	switch verr.Kind {
	case TokenErrExpired:
		if refreshToken == "" {
			return &ValidationResult{
				Status:             ValidationStatusInvalid,
				Reason:             TokenErrExpired,
				RequiresFullReauth: true,
			}, nil
		}
		return s.refreshExpiredToken(ctx, accessToken, refreshToken)
	case TokenErrMalformed:
		return &ValidationResult{
			Status:             ValidationStatusInvalid,
			Reason:             TokenErrMalformed + ": " + verr.Detail,
			RequiresFullReauth: true,
		}, nil
	default:
		return &ValidationResult{
			Status:             ValidationStatusInvalid,
			Reason:             TokenErrInvalidSignature + ": " + verr.Detail,
			RequiresFullReauth: true,
		}, nil
	}
}

func (s *OAuthService) validationForLiveToken(ctx context.Context, claims *AccessClaims) (*ValidationResult, error) {
	// Client credential tokens have no user account to check.
	if claims.Subject != "" && claims.Subject != claims.ClientID {
		user, err := s.users.GetByID(ctx, claims.Subject)
		if err != nil {
			return nil, serverError("failed to load user")
		}
		if user == nil {
			return &ValidationResult{
				Status:             ValidationStatusInvalid,
				Reason:             "user_not_found",
				RequiresFullReauth: true,
			}, nil
		}
	}

	expiresIn := int64(0)
	if claims.ExpiresAt != nil {
		expiresIn = int64(time.Until(claims.ExpiresAt.Time).Seconds())
	}
	return &ValidationResult{
		Status:    ValidationStatusValid,
		ExpiresIn: expiresIn,
		UserID:    claims.Subject,
		TenantID:  claims.TenantID,
		Scope:     claims.Scope,
	}, nil
}

func (s *OAuthService) refreshExpiredToken(ctx context.Context, accessToken, refreshToken string) (*ValidationResult, error) {
	claims, err := s.tokens.DecodeUnverified(accessToken)
	if err != nil {
		return &ValidationResult{
			Status:             ValidationStatusInvalid,
			Reason:             TokenErrMalformed + ": cannot decode expired token claims",
			RequiresFullReauth: true,
		}, nil
	}

	rt, err := s.getRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, serverError("failed to load refresh token")
	}
	if rt == nil || rt.Revoked || time.Now().After(rt.ExpiresAt) || rt.UserID != claims.Subject {
		return &ValidationResult{
			Status:             ValidationStatusInvalid,
			Reason:             "invalid_refresh_token",
			RequiresFullReauth: true,
		}, nil
	}

	user, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, serverError("failed to load user")
	}
	if user == nil {
		return &ValidationResult{
			Status:             ValidationStatusInvalid,
			Reason:             "user_not_found",
			RequiresFullReauth: true,
		}, nil
	}

	access, err := s.tokens.GenerateAccessToken(rt.UserID, rt.TenantID, rt.ClientID, rt.Scope)
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", rt.ClientID).Msg("access token generation failed during refresh")
		return &ValidationResult{
			Status:             ValidationStatusInvalid,
			Reason:             "refresh_failed_token_generation",
			RequiresFullReauth: true,
		}, nil
	}

	s.logger.Info().
		Str("client_id", rt.ClientID).
		Str("user_id", rt.UserID).
		Msg("access token refreshed via validation endpoint")

	return &ValidationResult{
		Status:       ValidationStatusRefreshed,
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
		UserID:       rt.UserID,
		TenantID:     rt.TenantID,
		Scope:        rt.Scope,
	}, nil
}

// scopeSubset reports whether every space-separated scope in requested also
// appears in allowed. An empty allow-list imposes no restriction.
func scopeSubset(requested, allowed string) bool {
	if strings.TrimSpace(allowed) == "" {
		return true
	}
	allowedSet := map[string]struct{}{}
	for _, s := range strings.Fields(allowed) {
		allowedSet[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := allowedSet[s]; !ok {
			return false
		}
	}
	return true
}
