package production

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/internal/service/dashboard"
	"github.com/mamadbah2/asigest/pkg/clients/asigest"
)

var (
	// ErrInvalidBatch is returned when a batch action carries invalid figures.
	ErrInvalidBatch = errors.New("invalid batch data")
	// ErrBatchNotFound is returned when the backend does not know the batch.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrBatchClosed is returned when closing a batch the backend already closed.
	ErrBatchClosed = errors.New("batch already closed")
)

// Backend is the subset of the backend client used for batch actions.
type Backend interface {
	GetBatch(ctx context.Context, id int) (*models.Batch, error)
	OpenBatch(ctx context.Context, req models.OpenBatchRequest) (*models.Batch, error)
	CloseBatch(ctx context.Context, id int, req models.CloseBatchRequest) (*models.Batch, error)
}

// Refresher schedules a dashboard refresh without waiting for it.
type Refresher interface {
	Trigger()
}

// BatchDetail is a batch enriched with the figures the shop floor reads off it.
type BatchDetail struct {
	models.Batch
	IsOpen      bool    `json:"aperto"`
	Yield       float64 `json:"resa"`
	ScrapRate   float64 `json:"percentuale_scarti"`
	DurationMin *int    `json:"durata_min"`
}

// Service proxies batch open/close actions to the backend.
type Service struct {
	backend   Backend
	refresher Refresher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires a new production service instance.
func NewService(backend Backend, refresher Refresher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, refresher: refresher, logger: logger, now: time.Now}
}

// OpenBatch starts a new batch on a stage.
func (s *Service) OpenBatch(ctx context.Context, req models.OpenBatchRequest) (*models.Batch, error) {
	if err := validateOpen(req); err != nil {
		return nil, err
	}
	req.Notes = trimNote(req.Notes)
	req.FeederProg = trimNote(req.FeederProg)

	batch, err := s.backend.OpenBatch(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, asigest.ErrNotFound):
			return nil, fmt.Errorf("%w: stage %d not found", ErrInvalidBatch, req.StageID)
		case errors.Is(err, asigest.ErrBadRequest):
			return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
		}
		return nil, fmt.Errorf("open batch on stage %d: %w", req.StageID, err)
	}

	s.logger.Info("batch opened", zap.Int("batch_id", batch.ID), zap.Int("stage_id", batch.StageID))
	s.refresh()
	return batch, nil
}

// CloseBatch records the final output and scrap of a batch.
func (s *Service) CloseBatch(ctx context.Context, id int, req models.CloseBatchRequest) (*models.Batch, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: batch id must be positive", ErrInvalidBatch)
	}
	if req.QtyOutput == nil {
		return nil, fmt.Errorf("%w: output quantity is required", ErrInvalidBatch)
	}
	if *req.QtyOutput < 0 || req.QtyScrap < 0 {
		return nil, fmt.Errorf("%w: quantities must not be negative", ErrInvalidBatch)
	}
	req.Notes = trimNote(req.Notes)

	batch, err := s.backend.CloseBatch(ctx, id, req)
	if err != nil {
		switch {
		case errors.Is(err, asigest.ErrNotFound):
			return nil, fmt.Errorf("%w: %d", ErrBatchNotFound, id)
		case errors.Is(err, asigest.ErrBadRequest):
			return nil, fmt.Errorf("%w: %d", ErrBatchClosed, id)
		}
		return nil, fmt.Errorf("close batch %d: %w", id, err)
	}

	s.logger.Info("batch closed",
		zap.Int("batch_id", id),
		zap.Int("output", *req.QtyOutput),
		zap.Int("scrap", req.QtyScrap))
	s.refresh()
	return batch, nil
}

// GetBatch returns a batch with its derived yield, scrap rate and duration.
// Open batches report the time elapsed so far.
func (s *Service) GetBatch(ctx context.Context, id int) (*BatchDetail, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: batch id must be positive", ErrInvalidBatch)
	}
	batch, err := s.backend.GetBatch(ctx, id)
	if err != nil {
		if errors.Is(err, asigest.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrBatchNotFound, id)
		}
		return nil, err
	}
	return s.detail(*batch), nil
}

func (s *Service) detail(b models.Batch) *BatchDetail {
	d := &BatchDetail{
		Batch:     b,
		IsOpen:    b.Open(),
		Yield:     dashboard.Round1(dashboard.BatchYield(b)),
		ScrapRate: dashboard.Round1(dashboard.ScrapRate(b)),
	}

	switch {
	case !d.IsOpen:
		if dur, ok := dashboard.BatchDuration(b); ok {
			d.DurationMin = models.IntPtr(int(math.Round(dur.Minutes())))
		}
	case models.Valid(b.StartedAt):
		d.DurationMin = models.IntPtr(int(math.Round(s.now().Sub(b.StartedAt.Time).Minutes())))
	}
	return d
}

func (s *Service) refresh() {
	if s.refresher != nil {
		s.refresher.Trigger()
	}
}

func validateOpen(req models.OpenBatchRequest) error {
	if req.StageID <= 0 {
		return fmt.Errorf("%w: stage id must be positive", ErrInvalidBatch)
	}
	if req.OperatorID != nil && *req.OperatorID <= 0 {
		return fmt.Errorf("%w: operator id must be positive", ErrInvalidBatch)
	}
	if req.MachineID != nil && *req.MachineID <= 0 {
		return fmt.Errorf("%w: machine id must be positive", ErrInvalidBatch)
	}
	if req.QtyInput != nil && *req.QtyInput < 0 {
		return fmt.Errorf("%w: input quantity must not be negative", ErrInvalidBatch)
	}
	if req.SetupMin != nil && *req.SetupMin < 0 {
		return fmt.Errorf("%w: setup minutes must not be negative", ErrInvalidBatch)
	}
	return nil
}

func trimNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
