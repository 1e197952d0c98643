package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shiftwatch/shiftwatch/internal/models"
)

var testSecret = []byte("test-secret-key-minimum-32-characters")

func signTestToken(t *testing.T, secret []byte, role string) string {
	t.Helper()

	token, err := SignToken(secret, &Claims{
		UserID: uuid.Must(uuid.NewV7()),
		Email:  "worker@example.com",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return token
}

func TestMiddleware(t *testing.T) {
	var captured *Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	call := func(handler http.Handler, authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid token passes and attaches identity", func(t *testing.T) {
		captured = nil
		handler := Middleware(testSecret, "")(next)

		rec := call(handler, "Bearer "+signTestToken(t, testSecret, models.RoleEmployee))

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, captured)
		require.Equal(t, "worker@example.com", captured.Email)
		require.Equal(t, models.RoleEmployee, captured.Role)
	})

	t.Run("missing header is unauthorized", func(t *testing.T) {
		handler := Middleware(testSecret, "")(next)
		require.Equal(t, http.StatusUnauthorized, call(handler, "").Code)
	})

	t.Run("malformed header is unauthorized", func(t *testing.T) {
		handler := Middleware(testSecret, "")(next)
		require.Equal(t, http.StatusUnauthorized, call(handler, "Token abc").Code)
	})

	t.Run("wrong secret is unauthorized", func(t *testing.T) {
		handler := Middleware(testSecret, "")(next)
		other := signTestToken(t, []byte("some-other-secret-key-32-characters!!"), models.RoleEmployee)
		require.Equal(t, http.StatusUnauthorized, call(handler, "Bearer "+other).Code)
	})

	t.Run("expired token is unauthorized", func(t *testing.T) {
		handler := Middleware(testSecret, "")(next)
		expired, err := SignToken(testSecret, &Claims{
			UserID: uuid.Must(uuid.NewV7()),
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusUnauthorized, call(handler, "Bearer "+expired).Code)
	})

	t.Run("admin routes reject employees", func(t *testing.T) {
		handler := AdminMiddleware(testSecret)(next)
		rec := call(handler, "Bearer "+signTestToken(t, testSecret, models.RoleEmployee))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin routes accept admins", func(t *testing.T) {
		handler := AdminMiddleware(testSecret)(next)
		rec := call(handler, "Bearer "+signTestToken(t, testSecret, models.RoleAdmin))
		require.Equal(t, http.StatusNoContent, rec.Code)
	})
}
