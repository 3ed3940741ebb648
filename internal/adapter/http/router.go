package http

import (
	"github.com/gin-gonic/gin"
	"github.com/lumora/storefront-api/internal/adapter/http/middleware"
	"github.com/lumora/storefront-api/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(ch *CartHandler, sh *SessionHandler, sessions *middleware.Sessions, idem *middleware.Idempotency) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.MetricsMiddleware())

	l := logging.New("http")
	r.Use(middleware.Logging(l))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	// Prometheus endpoint (scraped by Prometheus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/v1/session", sh.IssueSession)

	v1 := r.Group("/v1", sessions.Require())
	{
		v1.GET("/cart", ch.GetCart)
		v1.GET("/cart/history", ch.History)
		v1.POST("/cart/errors/clear", ch.ClearErrors)

		mut := v1.Group("", idem.Guard())
		{
			mut.POST("/cart/lines", ch.AddLine)
			mut.POST("/cart/lines/batch", ch.AddBatch)
			mut.PATCH("/cart/lines/:lineId", ch.UpdateLine)
			mut.DELETE("/cart/lines/:lineId", ch.RemoveLine)
			mut.POST("/cart/reset", ch.ResetCart)
		}
	}

	return r
}
