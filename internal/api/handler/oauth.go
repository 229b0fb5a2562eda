package handler

import (
	"net/http"
	"net/url"

	"github.com/oskar/fitness/internal/api/middleware"
	"github.com/oskar/fitness/internal/api/request"
	"github.com/oskar/fitness/internal/api/response"
	"github.com/oskar/fitness/internal/core"
)

const oobRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

type OAuth struct {
	svc     *core.OAuthService
	clients *core.OAuthClientService
	tokens  *core.TokenService
}

func NewOAuth(svc *core.OAuthService, clients *core.OAuthClientService, tokens *core.TokenService) *OAuth {
	return &OAuth{svc: svc, clients: clients, tokens: tokens}
}

// RegistrationResponse is the RFC 7591 registration success body. The plain
// client secret appears here and nowhere else.
type RegistrationResponse struct {
	ClientID              string   `json:"client_id"`
	ClientSecret          string   `json:"client_secret"`
	ClientIDIssuedAt      int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt int64    `json:"client_secret_expires_at"`
	RedirectURIs          []string `json:"redirect_uris"`
	GrantTypes            []string `json:"grant_types"`
	ResponseTypes         []string `json:"response_types"`
	ClientName            string   `json:"client_name,omitempty"`
	ClientURI             string   `json:"client_uri,omitempty"`
	Scope                 string   `json:"scope,omitempty"`
}

// Register handles dynamic client registration.
func (h *OAuth) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterClientRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteOAuthError(w, &core.OAuthError{
			Code:        core.ErrCodeInvalidRequest,
			Description: err.Error(),
		})
		return
	}

	client, secret, err := h.clients.Register(r.Context(), core.RegisterClientParams{
		RedirectURIs:  req.RedirectURIs,
		GrantTypes:    req.GrantTypes,
		ResponseTypes: req.ResponseTypes,
		ClientName:    req.ClientName,
		ClientURI:     req.ClientURI,
		Scope:         req.Scope,
	})
	if err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	var expiresAt int64
	if client.ExpiresAt != nil {
		expiresAt = client.ExpiresAt.Unix()
	}

	// The advertised scope defaults when none was requested; the stored
	// client keeps an empty, unrestricted allow-list.
	scope := client.Scope
	if scope == "" {
		scope = core.DefaultRegistrationScope
	}

	w.Header().Set("Cache-Control", "no-store")
	response.WriteJSON(w, http.StatusCreated, RegistrationResponse{
		ClientID:              client.ClientID,
		ClientSecret:          secret,
		ClientIDIssuedAt:      client.CreatedAt.Unix(),
		ClientSecretExpiresAt: expiresAt,
		RedirectURIs:          client.RedirectURIs,
		GrantTypes:            client.GrantTypes,
		ResponseTypes:         client.ResponseTypes,
		ClientName:            client.ClientName,
		ClientURI:             client.ClientURI,
		Scope:                 scope,
	})
}

// Authorize handles the authorization endpoint for an authenticated user
// session. On success the user agent is redirected back to the client with
// the code and state; the out-of-band redirect URI gets a JSON body instead.
func (h *OAuth) Authorize(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.EnsureSigningKey(r.Context()); err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	q := r.URL.Query()
	result, err := h.svc.Authorize(r.Context(), core.AuthorizeParams{
		ClientID:            q.Get("client_id"),
		ResponseType:        q.Get("response_type"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		UserID:              middleware.SessionUserID(r.Context()),
		TenantID:            q.Get("tenant_id"),
	})
	if err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	if result.RedirectURI == oobRedirectURI {
		body := map[string]string{"code": result.Code}
		if result.State != "" {
			body["state"] = result.State
		}
		w.Header().Set("Cache-Control", "no-store")
		response.WriteJSON(w, http.StatusOK, body)
		return
	}

	u, perr := url.Parse(result.RedirectURI)
	if perr != nil {
		response.WriteOAuthError(w, &core.OAuthError{
			Code:        core.ErrCodeInvalidRequest,
			Description: "invalid redirect_uri",
		})
		return
	}
	params := u.Query()
	params.Set("code", result.Code)
	if result.State != "" {
		params.Set("state", result.State)
	}
	u.RawQuery = params.Encode()

	http.Redirect(w, r, u.String(), http.StatusFound)
}

// Token handles the form-encoded token endpoint. Client credentials are
// accepted via HTTP Basic auth or form fields.
func (h *OAuth) Token(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.EnsureSigningKey(r.Context()); err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		response.WriteOAuthError(w, &core.OAuthError{
			Code:        core.ErrCodeInvalidRequest,
			Description: "invalid form data",
		})
		return
	}

	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if basicID, basicSecret, ok := r.BasicAuth(); ok {
		clientID, clientSecret = basicID, basicSecret
	}

	resp, err := h.svc.Token(r.Context(), core.TokenParams{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
	})
	if err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	response.WriteJSON(w, http.StatusOK, resp)
}

// ValidateRefresh checks an access token and transparently refreshes it when
// expired, if a live refresh token accompanies the request.
func (h *OAuth) ValidateRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.EnsureSigningKey(r.Context()); err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	var req request.ValidateRefreshRequest
	if err := request.Decode(r, &req); err != nil {
		response.WriteOAuthError(w, &core.OAuthError{
			Code:        core.ErrCodeInvalidRequest,
			Description: err.Error(),
		})
		return
	}

	result, err := h.svc.ValidateAndRefresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	response.WriteJSON(w, http.StatusOK, result)
}

// Discovery serves the RFC 8414 authorization server metadata document.
func (h *OAuth) Discovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "max-age=3600")
	response.WriteJSON(w, http.StatusOK, h.svc.Discovery())
}

// JWKS serves the public signing keys. The key is generated on first access.
func (h *OAuth) JWKS(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.EnsureSigningKey(r.Context()); err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	jwks, err := h.tokens.JWKS()
	if err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(jwks)
}
