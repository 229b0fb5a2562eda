package core

// RFC 6749 error codes.
const (
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeInvalidClient        = "invalid_client"
	ErrCodeInvalidGrant         = "invalid_grant"
	ErrCodeInvalidScope         = "invalid_scope"
	ErrCodeUnauthorizedClient   = "unauthorized_client"
	ErrCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrCodeServerError          = "server_error"
)

// OAuthError is a protocol-level OAuth 2.0 error carrying an RFC 6749 error
// code and a human-readable description. Infrastructure failures are wrapped
// separately; only OAuthError values reach clients.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

func invalidRequest(description string) *OAuthError {
	return &OAuthError{Code: ErrCodeInvalidRequest, Description: description}
}

// invalidClient deliberately carries a fixed description: authentication
// failures never reveal which check failed.
func invalidClient() *OAuthError {
	return &OAuthError{Code: ErrCodeInvalidClient, Description: "Invalid client credentials"}
}

func invalidGrant(description string) *OAuthError {
	return &OAuthError{Code: ErrCodeInvalidGrant, Description: description}
}

func invalidScope(description string) *OAuthError {
	return &OAuthError{Code: ErrCodeInvalidScope, Description: description}
}

func unauthorizedClient(description string) *OAuthError {
	return &OAuthError{Code: ErrCodeUnauthorizedClient, Description: description}
}

func unsupportedGrantType() *OAuthError {
	return &OAuthError{Code: ErrCodeUnsupportedGrantType, Description: "Unsupported grant_type"}
}

func serverError(description string) *OAuthError {
	return &OAuthError{Code: ErrCodeServerError, Description: description}
}
