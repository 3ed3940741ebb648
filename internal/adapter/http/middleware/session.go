package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lumora/storefront-api/configs"
	"github.com/lumora/storefront-api/internal/entity"
)

const sessionKey = "session"

// SessionClaims is what the cart routes need from the session token.
type SessionClaims struct {
	SessionID string
	Buyer     entity.Buyer
}

// SessionFrom returns the claims stashed by Sessions. Second return is false
// on routes that skipped the middleware.
func SessionFrom(c *gin.Context) (SessionClaims, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return SessionClaims{}, false
	}
	sc, ok := v.(SessionClaims)
	return sc, ok
}

type Sessions struct {
	cfg configs.Config
}

func NewSessions(cfg configs.Config) *Sessions {
	return &Sessions{cfg: cfg}
}

// Require validates the session JWT and stashes its claims in the context.
func (s *Sessions) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			unauth(c, "invalid_request", "missing bearer token")
			return
		}

		raw := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.cfg.Security.JWTSecret), nil
		}, jwt.WithLeeway(30*time.Second)) // small clock skew

		if err != nil || !token.Valid {
			unauth(c, "invalid_token", "invalid jwt")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauth(c, "invalid_token", "claims parsing error")
			return
		}
		if claims["iss"] != s.cfg.Security.Issuer || claims["aud"] != s.cfg.Security.Audience {
			unauth(c, "invalid_token", "iss/aud mismatch")
			return
		}

		sid, _ := claims["sid"].(string)
		if sid == "" {
			unauth(c, "invalid_token", "missing session id")
			return
		}
		country, _ := claims["country"].(string)
		language, _ := claims["language"].(string)

		c.Set(sessionKey, SessionClaims{
			SessionID: sid,
			Buyer:     entity.Buyer{CountryCode: country, LanguageCode: language},
		})
		c.Next()
	}
}

func unauth(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code, "error_description": desc})
}
