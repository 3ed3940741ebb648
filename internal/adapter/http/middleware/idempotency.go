package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumora/storefront-api/internal/adapter/cache"
	"github.com/lumora/storefront-api/internal/logging"
)

// storedResponse is what Remember keeps per (session, idempotency key).
type storedResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

type Idempotency struct {
	store cache.IdempotencyStore
}

func NewIdempotency(store cache.IdempotencyStore) *Idempotency {
	return &Idempotency{store: store}
}

// Guard short-circuits duplicate mutation submissions. A request carrying an
// X-Idempotency-Key the session has completed before gets the recorded
// response replayed; a key currently in flight gets 409. Requests without the
// header pass through untouched.
func (i *Idempotency) Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Idempotency-Key")
		if key == "" {
			c.Next()
			return
		}
		sc, ok := SessionFrom(c)
		if !ok {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		if raw, found, err := i.store.Recall(ctx, sc.SessionID, key); err == nil && found {
			var sr storedResponse
			if json.Unmarshal([]byte(raw), &sr) == nil {
				c.Header("X-Idempotent-Replay", "true")
				c.Data(sr.Status, "application/json", []byte(sr.Body))
				c.Abort()
				return
			}
		}

		locked, err := i.store.TryLock(ctx, sc.SessionID, key)
		if err != nil {
			// Redis down: let the request through rather than blocking carts.
			logging.From(c).Warn("idempotency lock failed", "err", err)
			c.Next()
			return
		}
		if !locked {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate_request"})
			return
		}

		blw := &bodyLogWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = blw
		c.Next()

		sr := storedResponse{Status: c.Writer.Status(), Body: blw.buf.String()}
		if raw, err := json.Marshal(sr); err == nil {
			if err := i.store.Remember(ctx, sc.SessionID, key, string(raw)); err != nil {
				logging.From(c).Warn("idempotency remember failed", "err", err)
			}
		}
	}
}
