package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shiftwatch/shiftwatch/internal/models"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Claims is the JWT payload issued by the identity service. Tokens are signed
// with a shared HS256 secret.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// IdentityFromContext returns the authenticated identity, or nil when the
// request did not pass through Middleware.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey).(*Identity)
	return identity
}

// SignToken issues an HS256 token for the given identity. Used by tests and
// local tooling; production tokens come from the identity service.
func SignToken(secret []byte, claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Middleware validates the bearer token and, when requiredRole is non-empty,
// rejects callers whose role does not match.
func Middleware(secret []byte, requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims := &Claims{}
			_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil {
				log.Debug().Err(err).Msg("Rejected invalid token")
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if requiredRole != "" && claims.Role != requiredRole {
				writeAuthError(w, http.StatusForbidden, "insufficient role")
				return
			}

			identity := &Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
				Role:   claims.Role,
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware requires a valid token with the admin role.
func AdminMiddleware(secret []byte) func(http.Handler) http.Handler {
	return Middleware(secret, models.RoleAdmin)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}

	return token, true
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
