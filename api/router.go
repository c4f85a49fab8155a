package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	Bookings *BookingHandler
	Disputes *DisputeHandler
	Payouts  *PayoutHandler
	Finance  *FinanceConfigHandler
	// Webhooks is optional; it is only mounted when a gateway is configured.
	Webhooks *WebhookHandler
}

func NewRouter(h Handlers, limiter *RateLimiter, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))
	if limiter != nil {
		router.Use(limiter.Middleware())
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if h.Webhooks != nil {
		h.Webhooks.Register(router.Group("/webhooks"))
	}

	v1 := router.Group("/api/v1", ActorMiddleware())
	bookings := v1.Group("/bookings")
	h.Bookings.Register(bookings)
	h.Disputes.Register(bookings, v1.Group("/disputes"))
	h.Payouts.Register(v1.Group("/hosts"), v1.Group("/payouts"))
	h.Finance.Register(v1.Group("/finance-config"))
	return router
}
