package core

import "github.com/oskar/fitness/internal/model"

// Discovery returns the RFC 8414 authorization server metadata document.
func (s *OAuthService) Discovery() map[string]any {
	issuer := s.tokens.issuer
	return map[string]any{
		"issuer":                 issuer,
		"authorization_endpoint": issuer + "/oauth2/authorize",
		"token_endpoint":         issuer + "/oauth2/token",
		"registration_endpoint":  issuer + "/oauth2/register",
		"jwks_uri":               issuer + "/.well-known/jwks.json",
		"response_types_supported": []string{
			model.ResponseTypeCode,
		},
		"grant_types_supported": []string{
			model.GrantAuthorizationCode,
			model.GrantClientCredentials,
			model.GrantRefreshToken,
		},
		"token_endpoint_auth_methods_supported": []string{
			"client_secret_basic",
			"client_secret_post",
		},
		"code_challenge_methods_supported": []string{"S256"},
		"scopes_supported": []string{
			"fitness:read",
			"fitness:write",
			"activities:read",
			"activities:write",
			"profile:read",
		},
	}
}
