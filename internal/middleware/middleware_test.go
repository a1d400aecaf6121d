package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleantree/internal/auth"
	"cleantree/internal/domain"
	"cleantree/internal/domain/models"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(domain.UserID(r.Context())))
	})
}

func token(t *testing.T, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	verifier, err := auth.NewSecretVerifier("s3cret", quiet)
	require.NoError(t, err)
	handler := AuthMiddleware(verifier, quiet)(echoUser())

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "health is public", path: "/health", wantCode: http.StatusOK},
		{name: "missing token", path: "/api/trees/demo", wantCode: http.StatusUnauthorized},
		{name: "bad token", path: "/api/trees/demo", header: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/api/trees/demo", header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "header token", path: "/api/trees/demo", header: "Bearer " + token(t, "s3cret"), wantCode: http.StatusOK, wantBody: "user-42"},
		{name: "query token", path: "/api/trees/demo/events?access_token=" + token(t, "s3cret"), wantCode: http.StatusOK, wantBody: "user-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(quiet)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
