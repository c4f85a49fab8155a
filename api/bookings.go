package api

import (
	"net/http"

	"github.com/Domenick1991/shortlet/internal/service/booking"
	"github.com/Domenick1991/shortlet/internal/service/finance"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
	finance finance.FinanceUseCase
	configs finance.ConfigUseCase
}

func NewBookingHandler(service booking.BookingUseCase, fin finance.FinanceUseCase, configs finance.ConfigUseCase) *BookingHandler {
	return &BookingHandler{service: service, finance: fin, configs: configs}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/confirm", h.confirm)
	router.POST("/:id/activate", h.activate)
	router.POST("/:id/check-in", h.checkIn)
	router.POST("/:id/check-out", h.checkOut)
	router.POST("/:id/cancel", h.cancel)
	router.GET("/:id/windows", h.windows)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req booking.CreateBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// confirm freezes the finance config active right now into the booking.
func (h *BookingHandler) confirm(c *gin.Context) {
	ctx := c.Request.Context()
	cfg, err := h.configs.Active(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	b, err := h.finance.ConfirmBooking(ctx, actorFrom(c), c.Param("id"), *cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) activate(c *gin.Context) {
	b, err := h.service.Activate(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) checkIn(c *gin.Context) {
	b, err := h.service.CheckIn(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) checkOut(c *gin.Context) {
	b, err := h.service.CheckOut(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	res, err := h.service.Cancel(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *BookingHandler) windows(c *gin.Context) {
	w, err := h.service.Windows(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
