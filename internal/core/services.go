package core

import (
	"github.com/rs/zerolog"
)

type Services struct {
	Client *OAuthClientService
	Token  *TokenService
	Tenant *TenantService
	User   *UserService
	OAuth  *OAuthService
}

func NewServices(db DB, logger zerolog.Logger, issuer string) *Services {
	clients := NewOAuthClientService(db, logger)
	tokens := NewTokenService(db, issuer)
	tenants := NewTenantService(db, logger)
	users := NewUserService(db, logger)

	return &Services{
		Client: clients,
		Token:  tokens,
		Tenant: tenants,
		User:   users,
		OAuth:  NewOAuthService(db, clients, tokens, tenants, users, logger),
	}
}
