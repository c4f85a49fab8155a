package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/gateway"
	"github.com/Domenick1991/shortlet/internal/service/payout"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBytes = 64 << 10

type PayoutHandler struct {
	service payout.PayoutUseCase
}

func NewPayoutHandler(service payout.PayoutUseCase) *PayoutHandler {
	return &PayoutHandler{service: service}
}

func (h *PayoutHandler) Register(hosts, payouts *gin.RouterGroup) {
	hosts.PUT("/:id/payout-account", h.registerAccount)
	hosts.GET("/:id/balance", h.balance)
	hosts.POST("/:id/payouts", h.request)
	payouts.GET("/:id", h.get)
}

type accountRequest struct {
	Destination string `json:"destination"`
}

type payoutRequest struct {
	Amount domain.Money `json:"amount"`
}

type balanceResponse struct {
	HostID    string       `json:"host_id"`
	Available domain.Money `json:"available"`
}

func (h *PayoutHandler) registerAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	account, err := h.service.RegisterAccount(c.Request.Context(), actorFrom(c), c.Param("id"), req.Destination)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *PayoutHandler) balance(c *gin.Context) {
	hostID := c.Param("id")
	available, err := h.service.Balance(c.Request.Context(), actorFrom(c), hostID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{HostID: hostID, Available: available})
}

func (h *PayoutHandler) request(c *gin.Context) {
	var req payoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.service.RequestPayout(c.Request.Context(), actorFrom(c), c.Param("id"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *PayoutHandler) get(c *gin.Context) {
	p, err := h.service.GetPayout(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (string, domain.GatewayResult, error)
}

// WebhookHandler receives transfer status callbacks from Stripe. It sits
// outside the actor middleware; the signature authenticates the caller.
type WebhookHandler struct {
	parser  WebhookParser
	service payout.PayoutUseCase
	log     *zap.Logger
}

func NewWebhookHandler(parser WebhookParser, service payout.PayoutUseCase, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{parser: parser, service: service, log: log}
}

func (h *WebhookHandler) Register(router *gin.RouterGroup) {
	router.POST("/stripe", h.stripe)
}

func (h *WebhookHandler) stripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	payoutID, result, err := h.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, gateway.ErrIgnoredEvent) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	p, err := h.service.ApplyGatewayResult(c.Request.Context(), payoutID, result)
	if errors.Is(err, domain.ErrInvalidTransition) {
		// Out-of-order events such as a reversal of a completed transfer
		// never apply; anything but a 2xx is redelivered for days.
		h.log.Error("webhook result needs manual reconciliation",
			zap.String("payout_id", payoutID), zap.String("result", string(result.Status)),
			zap.String("reference", result.Reference), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		h.log.Error("apply webhook result", zap.String("payout_id", payoutID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(p.Status)})
}
