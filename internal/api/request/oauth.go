package request

// RegisterClientRequest is an RFC 7591 dynamic client registration request.
type RegisterClientRequest struct {
	RedirectURIs  []string `json:"redirect_uris" validate:"required,min=1"`
	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types"`
	ClientName    string   `json:"client_name" validate:"max=255"`
	ClientURI     string   `json:"client_uri" validate:"omitempty,url"`
	Scope         string   `json:"scope"`
}

// ValidateRefreshRequest asks the server to validate an access token and,
// when it has expired, refresh it using the optional refresh token.
type ValidateRefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token"`
}
