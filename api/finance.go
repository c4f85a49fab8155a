package api

import (
	"net/http"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/service/finance"
	"github.com/gin-gonic/gin"
)

type FinanceConfigHandler struct {
	service finance.ConfigUseCase
}

func NewFinanceConfigHandler(service finance.ConfigUseCase) *FinanceConfigHandler {
	return &FinanceConfigHandler{service: service}
}

func (h *FinanceConfigHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.active)
	router.PUT("", h.publish)
}

func (h *FinanceConfigHandler) active(c *gin.Context) {
	cfg, err := h.service.Active(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *FinanceConfigHandler) publish(c *gin.Context) {
	var req domain.FinanceConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := h.service.Publish(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}
