package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oskar/fitness/internal/api/response"
)

type contextKey string

// SessionUserIDKey carries the authenticated user's ID through the request context.
const SessionUserIDKey contextKey = "session_user_id"

// SessionAuth returns a middleware that validates a bearer session token
// against the sessions table. Tokens are stored hashed; the raw token never
// touches the database.
func SessionAuth(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || token == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing session token")
				return
			}

			hash := sha256.Sum256([]byte(token))
			tokenHash := hex.EncodeToString(hash[:])

			var userID string
			err := pool.QueryRow(r.Context(),
				`SELECT user_id FROM sessions WHERE token_hash = $1 AND expires_at > $2`,
				tokenHash, time.Now(),
			).Scan(&userID)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), SessionUserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionUserID returns the authenticated user ID from the request context,
// or "" when the request is unauthenticated.
func SessionUserID(ctx context.Context) string {
	id, _ := ctx.Value(SessionUserIDKey).(string)
	return id
}
