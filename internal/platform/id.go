package platform

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const clientIDPrefix = "fitness_client_"

func NewID() string {
	return uuid.New().String()
}

// NewClientID generates a random OAuth client identifier with a stable prefix.
func NewClientID() string {
	return clientIDPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// RandomToken returns n bytes from the system CSPRNG, base64url-encoded
// without padding. Used for authorization codes and refresh tokens. RNG
// failure is returned as an error, never substituted with a weaker source.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read system entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomSecret returns n bytes from the system CSPRNG, standard
// base64-encoded. Used for one-time-visible client secrets.
func RandomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read system entropy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
