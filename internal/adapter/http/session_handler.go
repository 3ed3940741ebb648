package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lumora/storefront-api/configs"
)

type SessionHandler struct {
	cfg configs.Config
}

func NewSessionHandler(cfg configs.Config) *SessionHandler {
	return &SessionHandler{cfg: cfg}
}

type sessionReq struct {
	Country  string `json:"country" binding:"required,len=2"`
	Language string `json:"language" binding:"required,len=2"`
}

// IssueSession mints the session token the cart routes require. The session
// id pins the cart; country/language travel in the claims so a locale switch
// shows up on the very next mutation.
//
// POST /v1/session accepts an existing sessionId to re-issue after a locale
// change without losing the cart.
func (h *SessionHandler) IssueSession(c *gin.Context) {
	var req struct {
		sessionReq
		SessionID string `json:"sessionId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	sid := req.SessionID
	if sid == "" {
		sid = uuid.NewString()
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":      h.cfg.Security.Issuer,
		"aud":      h.cfg.Security.Audience,
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"exp":      now.Add(h.cfg.Security.TTL).Unix(),
		"sid":      sid,
		"country":  req.Country,
		"language": req.Language,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.cfg.Security.JWTSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": signed,
		"token_type":   "Bearer",
		"session_id":   sid,
		"expires_in":   int(h.cfg.Security.TTL.Seconds()),
	})
}
