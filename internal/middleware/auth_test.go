package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func TestIssueAndParseAccessToken(t *testing.T) {
	token, err := IssueAccessToken(testSecret, 123, "reader", time.Hour)
	require.NoError(t, err)

	claims, err := ParseAccessToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, uint(123), claims.UserID)
	assert.Equal(t, "reader", claims.Username)
	assert.NotEmpty(t, claims.JTI)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestParseAccessTokenRejects(t *testing.T) {
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "7",
			"iss": TokenIssuer,
			"aud": TokenAudience,
			"exp": time.Now().Add(time.Hour).Unix(),
		}
	}

	expired := valid()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongIssuer := valid()
	wrongIssuer["iss"] = "someone-else"

	wrongAudience := valid()
	wrongAudience["aud"] = "other-client"

	noExpiry := valid()
	delete(noExpiry, "exp")

	badSubject := valid()
	badSubject["sub"] = "abc"

	otherSecret, err := IssueAccessToken("another-secret-another-secret-1234", 7, "x", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"expired", sign(expired), ErrInvalidToken},
		{"wrong issuer", sign(wrongIssuer), ErrInvalidToken},
		{"wrong audience", sign(wrongAudience), ErrInvalidToken},
		{"missing expiry", sign(noExpiry), ErrInvalidToken},
		{"bad subject", sign(badSubject), ErrInvalidSubject},
		{"wrong secret", otherSecret, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccessToken(testSecret, tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBearerToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(BearerToken(c))
	})

	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(body), "header %q", tt.header)
	}
}
