package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/pkg/clients/asigest"
)

// LoadErrorMessage is shown to users when a refresh cycle could not fetch its sources.
const LoadErrorMessage = "Errore nel caricamento della dashboard"

const triggerTimeout = 30 * time.Second

// Source is the subset of the backend client a refresh cycle reads from.
type Source interface {
	ListOrders(ctx context.Context, filter asigest.OrderFilter) (models.List[models.Order], error)
	ListBatches(ctx context.Context, filter asigest.BatchFilter) (models.List[models.Batch], error)
	ListStages(ctx context.Context, filter asigest.StageFilter) (models.List[models.Stage], error)
	ListStageTypes(ctx context.Context, department string) (models.List[models.StageType], error)
	ListOperators(ctx context.Context, active *bool) (models.List[models.Operator], error)
}

// AppliedFunc is invoked after a cycle's result has been applied to the store.
type AppliedFunc func(ctx context.Context, result models.DashboardResult)

// Service runs refresh cycles: fetch the five collections concurrently, compute,
// and apply the result to the store.
type Service struct {
	source      Source
	store       *Store
	ordersLimit int
	loc         *time.Location
	logger      *zap.Logger
	now         func() time.Time

	mu     sync.RWMutex
	hooks  []AppliedFunc
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires a dashboard service.
func NewService(source Source, store *Store, ordersLimit int, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewStore()
	}
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		source:      source,
		store:       store,
		ordersLimit: ordersLimit,
		loc:         loc,
		logger:      logger,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OnApplied registers fn to run after every applied result.
func (s *Service) OnApplied(fn AppliedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Store exposes the state container backing the service.
func (s *Service) Store() *Store {
	return s.store
}

// Current returns the displayed state.
func (s *Service) Current() State {
	return s.store.Current()
}

// Refresh runs one cycle. On a fetch failure nothing is computed, the previous
// result stays on display and the error is returned.
func (s *Service) Refresh(ctx context.Context) (State, error) {
	seq := s.store.Begin()
	started := s.now()

	snap, err := s.fetch(ctx)
	if err != nil {
		s.store.Fail(seq, LoadErrorMessage)
		s.logger.Warn("dashboard refresh failed", zap.Uint64("sequence", seq), zap.Error(err))
		return s.store.Current(), fmt.Errorf("refresh dashboard: %w", err)
	}

	now := s.now().In(s.loc)
	result := Compute(snap, now)

	if !s.store.Apply(seq, result, now) {
		s.logger.Debug("discarding superseded dashboard cycle", zap.Uint64("sequence", seq))
		return s.store.Current(), nil
	}

	s.logger.Debug("dashboard refreshed",
		zap.Uint64("sequence", seq),
		zap.Int("open_batches", result.KPI.OpenBatches),
		zap.Int("anomalies", len(result.Anomalies)),
		zap.Duration("duration", time.Since(started)))

	s.mu.RLock()
	hooks := append([]AppliedFunc(nil), s.hooks...)
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, result)
	}

	return s.store.Current(), nil
}

// Trigger starts a refresh in the background. It does nothing once Close has
// been called.
func (s *Service) Trigger() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, triggerTimeout)
		defer cancel()
		_, _ = s.Refresh(ctx)
	}()
}

// Close cancels background refreshes and waits for them to return.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Service) fetch(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	open := true

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Orders, err = s.source.ListOrders(gCtx, asigest.OrderFilter{Open: &open, Limit: s.ordersLimit})
		return err
	})
	g.Go(func() error {
		var err error
		snap.Batches, err = s.source.ListBatches(gCtx, asigest.BatchFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		snap.Stages, err = s.source.ListStages(gCtx, asigest.StageFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		snap.StageTypes, err = s.source.ListStageTypes(gCtx, "")
		return err
	})
	g.Go(func() error {
		var err error
		snap.Operators, err = s.source.ListOperators(gCtx, &open)
		return err
	})

	if err := g.Wait(); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}
