package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/lineval/internal/auth"
)

func TestTokenService_RoundTrip(t *testing.T) {
	tokens := auth.NewTokenService("test-secret", time.Hour)

	token, err := tokens.Generate("editor-1")
	require.NoError(t, err)

	subject, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "editor-1", subject)
}

func TestTokenService_RejectsWrongSecret(t *testing.T) {
	token, err := auth.NewTokenService("secret-a", time.Hour).Generate("editor-1")
	require.NoError(t, err)

	_, err = auth.NewTokenService("secret-b", time.Hour).Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	tokens := auth.NewTokenService("test-secret", time.Hour)
	expired := auth.NewTokenService("test-secret", -time.Minute)

	token, err := expired.Generate("editor-1")
	require.NoError(t, err)

	_, err = tokens.Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_RejectsGarbage(t *testing.T) {
	tokens := auth.NewTokenService("test-secret", time.Hour)
	_, err := tokens.Validate("not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRequireAuth(t *testing.T) {
	tokens := auth.NewTokenService("test-secret", time.Hour)

	var gotSubject string
	protected := auth.RequireAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = auth.Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// No header.
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Bad token.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer junk")
	protected.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid token.
	token, err := tokens.Generate("editor-1")
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protected.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "editor-1", gotSubject)
}
