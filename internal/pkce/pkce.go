// Package pkce implements the Proof Key for Code Exchange checks from
// RFC 7636. Only the S256 challenge method is supported; "plain" is
// rejected unconditionally.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// MethodS256 is the only accepted code_challenge_method.
	MethodS256 = "S256"

	minLength = 43
	maxLength = 128
)

// ValidateVerifier checks the code_verifier format per RFC 7636 section 4.1:
// 43-128 characters from the unreserved set [A-Za-z0-9-._~].
func ValidateVerifier(verifier string) error {
	if len(verifier) < minLength || len(verifier) > maxLength {
		return fmt.Errorf("code_verifier must be between %d and %d characters", minLength, maxLength)
	}
	for i := 0; i < len(verifier); i++ {
		if !isUnreserved(verifier[i]) {
			return fmt.Errorf("code_verifier contains invalid characters")
		}
	}
	return nil
}

// ValidateChallenge checks the code_challenge format. The challenge is the
// base64url encoding of a SHA-256 digest, so the same length bounds apply.
func ValidateChallenge(challenge string) error {
	if len(challenge) < minLength || len(challenge) > maxLength {
		return fmt.Errorf("code_challenge must be between %d and %d characters", minLength, maxLength)
	}
	return nil
}

// ValidateMethod accepts only S256. An empty method defaults to S256 per the
// server's policy of never accepting "plain".
func ValidateMethod(method string) error {
	if method == "" || method == MethodS256 {
		return nil
	}
	return fmt.Errorf("code_challenge_method must be %q", MethodS256)
}

// ChallengeS256 computes base64url(SHA256(verifier)) without padding.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyS256 reports whether the verifier matches the stored challenge,
// using a constant-time comparison.
func VerifyS256(verifier, challenge string) bool {
	computed := ChallengeS256(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
