package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oskar/fitness/internal/crypto"
	"github.com/oskar/fitness/internal/model"
)

func TestNewOAuthClientService(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())

	require.NotNil(t, svc)
	assert.Equal(t, db, svc.db)
}

// ---------- Register ----------

func TestOAuthClientService_Register_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	client, secret, err := svc.Register(ctx, RegisterClientParams{
		RedirectURIs: []string{"https://app.example.com/callback"},
		ClientName:   "Example App",
		Scope:        "fitness:read activities:read",
	})
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.True(t, strings.HasPrefix(client.ClientID, "fitness_client_"))
	assert.NotEmpty(t, secret)
	assert.True(t, crypto.VerifySecret(secret, client.ClientSecretHash))
	assert.Equal(t, []string{model.GrantAuthorizationCode}, client.GrantTypes)
	assert.Equal(t, []string{model.ResponseTypeCode}, client.ResponseTypes)
	require.NotNil(t, client.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(clientLifetime), *client.ExpiresAt, time.Minute)
	db.AssertExpectations(t)
}

func TestOAuthClientService_Register_ExplicitGrants(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	client, _, err := svc.Register(ctx, RegisterClientParams{
		RedirectURIs: []string{"urn:ietf:wg:oauth:2.0:oob"},
		GrantTypes:   []string{model.GrantAuthorizationCode, model.GrantClientCredentials},
	})
	require.NoError(t, err)
	assert.True(t, client.HasGrantType(model.GrantClientCredentials))
	assert.Empty(t, client.Scope, "a registration without a scope stores no allow-list")
	db.AssertExpectations(t)
}

func TestOAuthClientService_Register_NoRedirectURIs(t *testing.T) {
	svc := NewOAuthClientService(&mockDB{}, zerolog.Nop())

	_, _, err := svc.Register(context.Background(), RegisterClientParams{})
	requireOAuthError(t, err, ErrCodeInvalidRequest)
}

func TestOAuthClientService_Register_BadRedirectURIs(t *testing.T) {
	svc := NewOAuthClientService(&mockDB{}, zerolog.Nop())
	ctx := context.Background()

	bad := []string{
		"",
		"https://app.example.com/cb#fragment",
		"https://*.example.com/cb",
		"http://app.example.com/cb",
		"not-a-uri",
		"/relative/path",
	}
	for _, uri := range bad {
		_, _, err := svc.Register(ctx, RegisterClientParams{RedirectURIs: []string{uri}})
		requireOAuthError(t, err, ErrCodeInvalidRequest)
	}
}

func TestOAuthClientService_Register_LoopbackHTTPAllowed(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	for _, uri := range []string{"http://localhost:8080/cb", "http://127.0.0.1:9999/cb"} {
		_, _, err := svc.Register(ctx, RegisterClientParams{RedirectURIs: []string{uri}})
		require.NoError(t, err, uri)
	}
}

func TestOAuthClientService_Register_UnsupportedGrantType(t *testing.T) {
	svc := NewOAuthClientService(&mockDB{}, zerolog.Nop())

	_, _, err := svc.Register(context.Background(), RegisterClientParams{
		RedirectURIs: []string{"https://app.example.com/cb"},
		GrantTypes:   []string{"password"},
	})
	requireOAuthError(t, err, ErrCodeInvalidRequest)
}

func TestOAuthClientService_Register_StoreError(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, errors.New("connection lost"))

	_, _, err := svc.Register(ctx, RegisterClientParams{
		RedirectURIs: []string{"https://app.example.com/cb"},
	})
	requireOAuthError(t, err, ErrCodeServerError)
	db.AssertExpectations(t)
}

// ---------- Validate ----------

func clientRow(t *testing.T, secret string, expiresAt time.Time) *mockRow {
	t.Helper()
	hash, err := crypto.HashSecret(secret)
	require.NoError(t, err)
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "fitness_client_abc"
		*(dest[1].(*string)) = hash
		*(dest[2].(*[]string)) = []string{"https://app.example.com/cb"}
		*(dest[3].(*[]string)) = []string{model.GrantAuthorizationCode}
		*(dest[4].(*[]string)) = []string{model.ResponseTypeCode}
		*(dest[5].(*string)) = "Example App"
		*(dest[6].(*string)) = ""
		*(dest[7].(*string)) = "fitness:read"
		*(dest[8].(*time.Time)) = time.Now().Add(-time.Hour)
		*(dest[9].(**time.Time)) = &expiresAt
		return nil
	}}
}

func TestOAuthClientService_Validate_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(clientRow(t, "s3cret", time.Now().Add(time.Hour)))

	client, err := svc.Validate(ctx, "fitness_client_abc", "s3cret")
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "fitness_client_abc", client.ClientID)
	db.AssertExpectations(t)
}

func TestOAuthClientService_Validate_WrongSecret(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(clientRow(t, "s3cret", time.Now().Add(time.Hour)))

	client, err := svc.Validate(ctx, "fitness_client_abc", "wrong")
	assert.Nil(t, client)
	requireOAuthError(t, err, ErrCodeInvalidClient)
}

func TestOAuthClientService_Validate_UnknownClient(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())
	ctx := context.Background()

	row := noRowsRow()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	client, err := svc.Validate(ctx, "fitness_client_nope", "whatever")
	assert.Nil(t, client)
	requireOAuthError(t, err, ErrCodeInvalidClient)
}

func TestOAuthClientService_Validate_ExpiredClient(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(clientRow(t, "s3cret", time.Now().Add(-time.Minute)))

	client, err := svc.Validate(ctx, "fitness_client_abc", "s3cret")
	assert.Nil(t, client)
	requireOAuthError(t, err, ErrCodeInvalidClient)
}

// Unknown client, wrong secret, and expired registration must be
// indistinguishable to the caller.
func TestOAuthClientService_Validate_UniformError(t *testing.T) {
	ctx := context.Background()

	db1 := &mockDB{}
	db1.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(noRowsRow())
	_, errUnknown := NewOAuthClientService(db1, zerolog.Nop()).Validate(ctx, "a", "b")

	db2 := &mockDB{}
	db2.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(clientRow(t, "right", time.Now().Add(time.Hour)))
	_, errWrongSecret := NewOAuthClientService(db2, zerolog.Nop()).Validate(ctx, "a", "wrong")

	assert.Equal(t, errUnknown.Error(), errWrongSecret.Error())
}

// ---------- GetByID ----------

func TestOAuthClientService_GetByID_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewOAuthClientService(db, zerolog.Nop())
	ctx := context.Background()

	row := noRowsRow()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	client, err := svc.GetByID(ctx, "fitness_client_nope")
	require.NoError(t, err)
	assert.Nil(t, client)
}

// requireOAuthError asserts that err is an OAuthError with the given code.
func requireOAuthError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var oerr *OAuthError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, code, oerr.Code)
}
