package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/internal/service/production"
)

// BatchService performs shop-floor batch actions.
type BatchService interface {
	OpenBatch(ctx context.Context, req models.OpenBatchRequest) (*models.Batch, error)
	CloseBatch(ctx context.Context, id int, req models.CloseBatchRequest) (*models.Batch, error)
	GetBatch(ctx context.Context, id int) (*production.BatchDetail, error)
}

// BatchHandler exposes batch open/close actions.
type BatchHandler struct {
	svc    BatchService
	logger *zap.Logger
}

// NewBatchHandler constructs the HTTP handler adapter.
func NewBatchHandler(svc BatchService, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{svc: svc, logger: logger}
}

// Open starts a batch.
func (h *BatchHandler) Open(c *gin.Context) {
	var req models.OpenBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid open batch payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	batch, err := h.svc.OpenBatch(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "open batch", err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// Close records the final figures of a batch.
func (h *BatchHandler) Close(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}

	var req models.CloseBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid close batch payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	batch, err := h.svc.CloseBatch(c.Request.Context(), id, req)
	if err != nil {
		h.fail(c, "close batch", err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// Get returns a batch with its derived figures.
func (h *BatchHandler) Get(c *gin.Context) {
	id, ok := batchID(c)
	if !ok {
		return
	}

	detail, err := h.svc.GetBatch(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get batch", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *BatchHandler) fail(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, production.ErrInvalidBatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, production.ErrBatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, production.ErrBatchClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("batch action failed", zap.String("action", action), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
	}
}

func batchID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch id"})
		return 0, false
	}
	return id, true
}
