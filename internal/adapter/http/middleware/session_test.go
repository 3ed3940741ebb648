package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumora/storefront-api/configs"
)

const testSecret = "unit-test-secret"

func testConfig() configs.Config {
	var cfg configs.Config
	cfg.Security.JWTSecret = testSecret
	cfg.Security.Issuer = "storefront-api"
	cfg.Security.Audience = "storefront-web"
	return cfg
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":      "storefront-api",
		"aud":      "storefront-web",
		"sid":      "sess-42",
		"country":  "US",
		"language": "EN",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
}

func sessionTestRouter(got *SessionClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/probe", NewSessions(testConfig()).Require(), func(c *gin.Context) {
		sc, ok := SessionFrom(c)
		if ok {
			*got = sc
		}
		c.Status(http.StatusNoContent)
	})
	return r
}

func probe(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionsRequireValidToken(t *testing.T) {
	var got SessionClaims
	r := sessionTestRouter(&got)

	w := probe(r, "Bearer "+signToken(t, testSecret, validClaims()))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "sess-42", got.SessionID)
	assert.Equal(t, "US", got.Buyer.CountryCode)
	assert.Equal(t, "EN", got.Buyer.LanguageCode)
}

func TestSessionsRequireRejects(t *testing.T) {
	tests := []struct {
		name   string
		header func(t *testing.T) string
	}{
		{"missing header", func(*testing.T) string { return "" }},
		{"not a bearer token", func(*testing.T) string { return "Basic abc" }},
		{"garbage token", func(*testing.T) string { return "Bearer not.a.jwt" }},
		{"wrong secret", func(t *testing.T) string {
			return "Bearer " + signToken(t, "other-secret", validClaims())
		}},
		{"expired", func(t *testing.T) string {
			claims := validClaims()
			claims["exp"] = time.Now().Add(-time.Hour).Unix()
			return "Bearer " + signToken(t, testSecret, claims)
		}},
		{"wrong issuer", func(t *testing.T) string {
			claims := validClaims()
			claims["iss"] = "someone-else"
			return "Bearer " + signToken(t, testSecret, claims)
		}},
		{"wrong audience", func(t *testing.T) string {
			claims := validClaims()
			claims["aud"] = "other-app"
			return "Bearer " + signToken(t, testSecret, claims)
		}},
		{"missing session id", func(t *testing.T) string {
			claims := validClaims()
			delete(claims, "sid")
			return "Bearer " + signToken(t, testSecret, claims)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got SessionClaims
			r := sessionTestRouter(&got)

			w := probe(r, tt.header(t))

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Empty(t, got.SessionID, "handler must not run")
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
		})
	}
}
