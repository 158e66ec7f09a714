package util

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("U1", "admin", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "U1", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestParseJWT_Rejects(t *testing.T) {
	valid, err := GenerateJWT("U1", "", "secret", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateJWT("U1", "", "secret", -time.Minute)
	require.NoError(t, err)
	noSubject, err := GenerateJWT("", "", "secret", time.Hour)
	require.NoError(t, err)

	for name, tc := range map[string]struct{ token, secret string }{
		"wrong secret": {valid, "other"},
		"expired":      {expired, "secret"},
		"no subject":   {noSubject, "secret"},
		"garbage":      {"not-a-token", "secret"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJWT(tc.token, tc.secret)
			assert.Error(t, err)
		})
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/notifications", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", ExtractToken(r))

	r = httptest.NewRequest("GET", "/notifications", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, ExtractToken(r))

	r = httptest.NewRequest("GET", "/notifications/stream?access_token=xyz", nil)
	assert.Equal(t, "xyz", ExtractToken(r))
}
