package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %d", tc.userId)
		})
	}
}

func TestExtractCredential(t *testing.T) {
	tcases := []struct {
		name     string
		setup    func(r *http.Request)
		expected string
		wantErr  bool
	}{
		{
			name:    "no credential",
			setup:   func(r *http.Request) {},
			wantErr: true,
		},
		{
			name: "bearer header",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer header-token")
			},
			expected: "header-token",
		},
		{
			name: "non-bearer header",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			},
			wantErr: true,
		},
		{
			name: "session cookie",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "token", Value: "cookie-token"})
			},
			expected: "cookie-token",
		},
		{
			name: "header wins over cookie",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer header-token")
				r.AddCookie(&http.Cookie{Name: "token", Value: "cookie-token"})
			},
			expected: "header-token",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(r)

			token, err := extractCredential(r)
			if tc.wantErr {
				assert.Error(t, err, "expected credential extraction to fail")
				return
			}
			assert.NoError(t, err, "expected credential extraction to succeed")
			assert.Equal(t, tc.expected, token, "expected the extracted credential")
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	key := []byte("round-trip-key")
	app := &ChatApp{signingKey: key}

	token, err := CreateToken(key, 42, time.Hour)
	assert.NoError(t, err, "expected token creation to succeed")

	userId, err := app.extractUserIdFromToken(token)
	assert.NoError(t, err, "expected token verification to succeed")
	assert.Equal(t, 42, userId, "expected the identity claim to survive the round trip")
}

func TestExtractUserIdFromToken_WrongKey(t *testing.T) {
	app := &ChatApp{signingKey: []byte("the-real-key")}

	token, err := CreateToken([]byte("another-key"), 42, time.Hour)
	assert.NoError(t, err, "expected token creation to succeed")

	_, err = app.extractUserIdFromToken(token)
	assert.Error(t, err, "expected verification to reject a foreign signature")
}
