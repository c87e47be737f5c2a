package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("test-secret", "struk")
	require.NoError(t, err)
	return v
}

func TestVerifier_RoundTrip(t *testing.T) {
	v := newVerifier(t)

	token, err := v.Issue("user-42", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.Expiry, 2*time.Second)
}

func TestVerifier_Rejects(t *testing.T) {
	v := newVerifier(t)
	other, err := NewVerifier("other-secret", "struk")
	require.NoError(t, err)
	wrongIssuer, err := NewVerifier("test-secret", "someone-else")
	require.NoError(t, err)

	expired, err := v.Issue("u", -time.Minute)
	require.NoError(t, err)
	forged, err := other.Issue("u", time.Hour)
	require.NoError(t, err)
	foreign, err := wrongIssuer.Issue("u", time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u", "iss": "struk"}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "struk", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "u", "iss": "struk", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not.a.token",
		"expired":      expired,
		"wrong secret": forged,
		"wrong issuer": foreign,
		"no expiry":    noExpiry,
		"no subject":   noSubject,
		"wrong alg":    hs512,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifier_UserIDClaim(t *testing.T) {
	v := newVerifier(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "firebase-uid", "iss": "struk", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "firebase-uid", id.UserID)
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier(" ", "")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Issue("user-1", time.Hour)
	require.NoError(t, err)

	var seen Identity
	var rejected error
	handler := Middleware(v, func(w http.ResponseWriter, r *http.Request, err error) {
		rejected = err
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/receipts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", seen.UserID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/receipts", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, errors.Is(rejected, ErrMissingToken))
}
