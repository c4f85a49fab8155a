package api

import (
	"io"
	"net/http"

	"github.com/Domenick1991/shortlet/internal/domain"
	"github.com/Domenick1991/shortlet/internal/media"
	"github.com/Domenick1991/shortlet/internal/service/dispute"
	"github.com/gin-gonic/gin"
)

const maxEvidenceFiles = 10

type DisputeHandler struct {
	service dispute.DisputeUseCase
}

func NewDisputeHandler(service dispute.DisputeUseCase) *DisputeHandler {
	return &DisputeHandler{service: service}
}

// Register mounts the booking-scoped routes on bookings and the rest on
// disputes.
func (h *DisputeHandler) Register(bookings, disputes *gin.RouterGroup) {
	bookings.POST("/:id/evidence", h.uploadEvidence)
	bookings.POST("/:id/disputes", h.open)
	bookings.GET("/:id/disputes", h.list)
	disputes.POST("/:id/resolve", h.resolve)
}

type openDisputeRequest struct {
	Category      domain.DisputeCategory `json:"category"`
	Writeup       string                 `json:"writeup"`
	Evidence      []domain.EvidenceRef   `json:"evidence"`
	ClaimedAmount domain.Money           `json:"claimed_amount"`
}

func (h *DisputeHandler) open(c *gin.Context) {
	var req openDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.service.OpenDispute(c.Request.Context(), actorFrom(c), dispute.OpenDisputeInput{
		BookingID:     c.Param("id"),
		Category:      req.Category,
		Writeup:       req.Writeup,
		Evidence:      req.Evidence,
		ClaimedAmount: req.ClaimedAmount,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *DisputeHandler) list(c *gin.Context) {
	disputes, err := h.service.ListDisputes(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if disputes == nil {
		disputes = []domain.Dispute{}
	}
	c.JSON(http.StatusOK, disputes)
}

func (h *DisputeHandler) resolve(c *gin.Context) {
	var req domain.Resolution
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := h.service.ResolveDispute(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// uploadEvidence takes the multipart field "files". Files that fail to
// upload are listed next to the stored ones.
func (h *DisputeHandler) uploadEvidence(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form with files"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}
	if len(headers) > maxEvidenceFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many files"})
		return
	}

	files := make([]media.File, 0, len(headers))
	var closers []io.Closer
	defer func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file " + fh.Filename})
			return
		}
		closers = append(closers, f)
		files = append(files, media.File{Name: fh.Filename, Reader: f})
	}

	res, err := h.service.UploadEvidence(c.Request.Context(), actorFrom(c), c.Param("id"), files)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if len(res.Evidence) == 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, res)
}
