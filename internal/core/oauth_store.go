package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oskar/fitness/internal/model"
)

// Persistence helpers for authorization codes, CSRF state values, and refresh
// tokens. Single-use consumption is done with a conditional UPDATE so that
// concurrent redemption attempts race on one row update: exactly one caller
// observes the row, everyone else gets pgx.ErrNoRows.

func (s *OAuthService) storeAuthCode(ctx context.Context, code *model.AuthCode) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_auth_codes (code, client_id, user_id, tenant_id, redirect_uri, scope, state, code_challenge, code_challenge_method, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		code.Code, code.ClientID, code.UserID, code.TenantID, code.RedirectURI,
		code.Scope, code.State, code.CodeChallenge, code.CodeChallengeMethod, code.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store auth code: %w", err)
	}
	return nil
}

// consumeAuthCode atomically marks an authorization code used and returns it.
// The code must belong to the client, match the redirect URI it was issued
// for, be unused, and be unexpired; otherwise nil is returned.
func (s *OAuthService) consumeAuthCode(ctx context.Context, code, clientID, redirectURI string) (*model.AuthCode, error) {
	var ac model.AuthCode
	err := s.db.QueryRow(ctx,
		`UPDATE oauth_auth_codes
		 SET used = true
		 WHERE code = $1 AND client_id = $2 AND redirect_uri = $3 AND used = false AND expires_at > $4
		 RETURNING code, client_id, user_id, tenant_id, redirect_uri, scope, state, code_challenge, code_challenge_method, expires_at`,
		code, clientID, redirectURI, time.Now(),
	).Scan(&ac.Code, &ac.ClientID, &ac.UserID, &ac.TenantID, &ac.RedirectURI,
		&ac.Scope, &ac.State, &ac.CodeChallenge, &ac.CodeChallengeMethod, &ac.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume auth code: %w", err)
	}
	ac.Used = true
	return &ac, nil
}

func (s *OAuthService) storeState(ctx context.Context, st *model.CSRFState) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_csrf_states (state, client_id, user_id, tenant_id, redirect_uri, scope, code_challenge, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		st.State, st.ClientID, st.UserID, st.TenantID, st.RedirectURI, st.Scope, st.CodeChallenge, st.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store csrf state: %w", err)
	}
	return nil
}

// consumeState atomically marks a CSRF state value used. Returns false when
// no matching unused, unexpired state exists for the client.
func (s *OAuthService) consumeState(ctx context.Context, state, clientID string) (bool, error) {
	var consumed string
	err := s.db.QueryRow(ctx,
		`UPDATE oauth_csrf_states
		 SET used = true
		 WHERE state = $1 AND client_id = $2 AND used = false AND expires_at > $3
		 RETURNING state`,
		state, clientID, time.Now(),
	).Scan(&consumed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("consume csrf state: %w", err)
	}
	return true, nil
}

func (s *OAuthService) storeRefreshToken(ctx context.Context, rt *model.RefreshToken) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_refresh_tokens (token, client_id, user_id, tenant_id, scope, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rt.Token, rt.ClientID, rt.UserID, rt.TenantID, rt.Scope, rt.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// consumeRefreshToken atomically revokes a refresh token and returns it, so
// a token presented twice only succeeds once. Returns nil when the token is
// unknown, already revoked, expired, or belongs to a different client.
func (s *OAuthService) consumeRefreshToken(ctx context.Context, token, clientID string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := s.db.QueryRow(ctx,
		`UPDATE oauth_refresh_tokens
		 SET revoked = true
		 WHERE token = $1 AND client_id = $2 AND revoked = false AND expires_at > $3
		 RETURNING token, client_id, user_id, tenant_id, scope, expires_at`,
		token, clientID, time.Now(),
	).Scan(&rt.Token, &rt.ClientID, &rt.UserID, &rt.TenantID, &rt.Scope, &rt.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	rt.Revoked = true
	return &rt, nil
}

// getRefreshToken looks a refresh token up without consuming it. Used by the
// validate-and-refresh flow, which keeps the presented refresh token alive.
func (s *OAuthService) getRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	err := s.db.QueryRow(ctx,
		`SELECT token, client_id, user_id, tenant_id, scope, expires_at, revoked
		 FROM oauth_refresh_tokens WHERE token = $1`,
		token,
	).Scan(&rt.Token, &rt.ClientID, &rt.UserID, &rt.TenantID, &rt.Scope, &rt.ExpiresAt, &rt.Revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &rt, nil
}
