package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := NewTokens("s3cret", 0)
	signed, err := tokens.Issue("u1", "u1@example.com")
	require.NoError(t, err)

	claims, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1@example.com", claims.Email)
	assert.Equal(t, "u1", claims.Subject)
}

func TestVerifyRejects(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)
	good, err := tokens.Issue("u1", "")
	require.NoError(t, err)

	otherKey, err := NewTokens("other", time.Hour).Issue("u1", "")
	require.NoError(t, err)

	expired := NewTokens("s3cret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("u1", "")
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"wrong key", otherKey, ErrInvalidToken},
		{"expired", old, ErrInvalidToken},
		{"no user id", noUser, ErrInvalidToken},
		{"no expiry", noExpiry, ErrInvalidToken},
		{"alg none", none, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = tokens.Verify(good)
	assert.NoError(t, err)
}

func TestRequire(t *testing.T) {
	tokens := NewTokens("s3cret", time.Hour)
	signed, err := tokens.Issue("u1", "")
	require.NoError(t, err)

	var seen Principal
	h := tokens.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/places/p1", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "u1", seen.UserID)
	})

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic " + signed,
		"bad token":    "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/places", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "Authentication failed!", body["error"])
			assert.Equal(t, "Unauthenticated", body["code"])
		})
	}

	t.Run("preflight passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/places", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestPrincipalFromEmpty(t *testing.T) {
	_, ok := PrincipalFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
