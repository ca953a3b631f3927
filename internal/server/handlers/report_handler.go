package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/internal/service/reporting"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 365
)

// ReportService builds period reports.
type ReportService interface {
	Generate(ctx context.Context, period, from, to string) (*models.ProductionReport, error)
}

// ReportArchive lists archived daily reports.
type ReportArchive interface {
	RecentDailyReports(ctx context.Context, limit int) ([]models.DailyReport, error)
}

// ReportHandler serves period reports and their exports.
type ReportHandler struct {
	svc     ReportService
	archive ReportArchive
	logger  *zap.Logger
}

// NewReportHandler constructs the HTTP handler adapter. archive may be nil
// when no daily archive is configured.
func NewReportHandler(svc ReportService, archive ReportArchive, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{svc: svc, archive: archive, logger: logger}
}

// Get returns the report of the requested period.
func (h *ReportHandler) Get(c *gin.Context) {
	report, ok := h.generate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report)
}

// Export returns the report as a CSV or XLSX attachment.
func (h *ReportHandler) Export(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", reporting.FormatCSV))
	if format != reporting.FormatCSV && format != reporting.FormatXLSX {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}

	report, ok := h.generate(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := reporting.Export(&buf, format, report); err != nil {
		h.logger.Error("failed exporting report", zap.String("format", format), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to export report"})
		return
	}

	filename := reporting.Filename(report.GeneratedAt, format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, reporting.ContentType(format), buf.Bytes())
}

// History lists the archived daily reports, newest first.
func (h *ReportHandler) History(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "daily archive not configured"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	reports, err := h.archive.RecentDailyReports(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed loading report history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to load report history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reports, "total": len(reports)})
}

func (h *ReportHandler) generate(c *gin.Context) (*models.ProductionReport, bool) {
	report, err := h.svc.Generate(c.Request.Context(), c.Query("period"), c.Query("from"), c.Query("to"))
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidPeriod) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		h.logger.Warn("failed generating report", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Errore nel caricamento del report"})
		return nil, false
	}
	return report, true
}
