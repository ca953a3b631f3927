package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/internal/service/dashboard"
	"github.com/mamadbah2/asigest/pkg/clients/asigest"
)

// Source is the subset of the backend client a report reads from.
type Source interface {
	ListBatches(ctx context.Context, filter asigest.BatchFilter) (models.List[models.Batch], error)
	ListStages(ctx context.Context, filter asigest.StageFilter) (models.List[models.Stage], error)
	ListStageTypes(ctx context.Context, department string) (models.List[models.StageType], error)
	ListOperators(ctx context.Context, active *bool) (models.List[models.Operator], error)
	ListMachines(ctx context.Context, filter asigest.MachineFilter) (models.List[models.Machine], error)
}

// Snapshot holds the collections a report is built from.
type Snapshot struct {
	Batches    []models.Batch
	Stages     []models.Stage
	StageTypes []models.StageType
	Operators  []models.Operator
	Machines   []models.Machine
}

// Service builds period production reports.
type Service struct {
	source Source
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a new reporting service instance.
func NewService(source Source, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{source: source, loc: loc, logger: logger, now: time.Now}
}

// Generate resolves the period and builds its report.
func (s *Service) Generate(ctx context.Context, period, from, to string) (*models.ProductionReport, error) {
	rng, err := ResolvePeriod(period, from, to, s.now().In(s.loc))
	if err != nil {
		return nil, err
	}
	return s.GenerateRange(ctx, rng)
}

// GenerateRange builds the report of an already resolved range.
func (s *Service) GenerateRange(ctx context.Context, rng Range) (*models.ProductionReport, error) {
	snap, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("load report data: %w", err)
	}

	report := Build(snap, rng, s.now().In(s.loc))
	s.logger.Debug("report generated",
		zap.String("period", rng.Period),
		zap.Time("from", rng.From),
		zap.Time("to", rng.To),
		zap.Int("batches", report.Summary.Batches))
	return &report, nil
}

// Daily builds today's archive record.
func (s *Service) Daily(ctx context.Context) (*models.DailyReport, error) {
	now := s.now().In(s.loc)
	rng, err := ResolvePeriod(models.PeriodToday, "", "", now)
	if err != nil {
		return nil, err
	}
	report, err := s.GenerateRange(ctx, rng)
	if err != nil {
		return nil, err
	}
	return &models.DailyReport{
		Date:               rng.From,
		Batches:            report.Summary.Batches,
		TotalOutput:        report.Summary.TotalOutput,
		TotalScrap:         report.Summary.TotalScrap,
		AverageYield:       report.Summary.AverageYield,
		AverageDurationMin: report.Summary.AverageDurationMin,
		Departments:        report.Departments,
		CreatedAt:          now,
	}, nil
}

func (s *Service) fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.source.ListBatches(gCtx, asigest.BatchFilter{})
		snap.Batches = list.Items
		return err
	})
	g.Go(func() error {
		list, err := s.source.ListStages(gCtx, asigest.StageFilter{})
		snap.Stages = list.Items
		return err
	})
	g.Go(func() error {
		list, err := s.source.ListStageTypes(gCtx, "")
		snap.StageTypes = list.Items
		return err
	})
	g.Go(func() error {
		list, err := s.source.ListOperators(gCtx, nil)
		snap.Operators = list.Items
		return err
	})
	g.Go(func() error {
		list, err := s.source.ListMachines(gCtx, asigest.MachineFilter{})
		snap.Machines = list.Items
		return err
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Build computes every report section for the batches closed within rng.
func Build(snap Snapshot, rng Range, generatedAt time.Time) models.ProductionReport {
	batches := closedWithin(snap.Batches, rng)

	return models.ProductionReport{
		Summary: models.ReportSummary{
			Period:             rng.Period,
			Label:              rng.Label,
			From:               rng.From,
			To:                 rng.To,
			Batches:            len(batches),
			TotalOutput:        dashboard.TotalOutput(batches),
			TotalScrap:         dashboard.TotalScrap(batches),
			AverageYield:       dashboard.AverageYield(batches),
			AverageDurationMin: dashboard.AverageDurationMinutes(batches),
		},
		Departments: departmentStats(batches, snap.Stages, snap.StageTypes),
		Operators:   operatorStats(batches, snap.Operators),
		Machines:    machineStats(batches, snap.Machines),
		GeneratedAt: generatedAt,
	}
}

func closedWithin(batches []models.Batch, rng Range) []models.Batch {
	out := make([]models.Batch, 0, len(batches))
	for _, b := range batches {
		if models.Valid(b.EndedAt) && rng.Contains(b.EndedAt.Time) {
			out = append(out, b)
		}
	}
	return out
}

func departmentStats(batches []models.Batch, stages []models.Stage, types []models.StageType) []models.DepartmentStats {
	stageIndex := make(map[int]models.Stage, len(stages))
	for _, st := range stages {
		stageIndex[st.ID] = st
	}
	typeIndex := dashboard.IndexStageTypes(types)

	type bucket struct {
		batches []models.Batch
		stages  map[int]struct{}
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0)

	for _, b := range batches {
		stage, ok := stageIndex[b.StageID]
		if !ok {
			continue
		}
		dept := dashboard.DepartmentOf(stage.StageTypeID, typeIndex)
		bk, ok := buckets[dept]
		if !ok {
			bk = &bucket{stages: make(map[int]struct{})}
			buckets[dept] = bk
			order = append(order, dept)
		}
		bk.batches = append(bk.batches, b)
		bk.stages[stage.ID] = struct{}{}
	}

	out := make([]models.DepartmentStats, 0, len(order))
	for _, dept := range order {
		bk := buckets[dept]
		out = append(out, models.DepartmentStats{
			Department: dept,
			Batches:    len(bk.batches),
			Stages:     len(bk.stages),
			Output:     dashboard.TotalOutput(bk.batches),
			Scrap:      dashboard.TotalScrap(bk.batches),
			Yield:      dashboard.AverageYield(bk.batches),
		})
	}
	return out
}

func operatorStats(batches []models.Batch, operators []models.Operator) []models.OperatorStats {
	known := make(map[int]models.Operator, len(operators))
	for _, op := range operators {
		known[op.ID] = op
	}

	grouped := make(map[int][]models.Batch)
	order := make([]int, 0)
	for _, b := range batches {
		if b.OperatorID == nil {
			continue
		}
		id := *b.OperatorID
		if _, ok := known[id]; !ok {
			continue
		}
		if _, seen := grouped[id]; !seen {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], b)
	}

	out := make([]models.OperatorStats, 0, len(order))
	for _, id := range order {
		group := grouped[id]
		out = append(out, models.OperatorStats{
			OperatorID:         id,
			Name:               known[id].DisplayName(),
			Batches:            len(group),
			Output:             dashboard.TotalOutput(group),
			Yield:              dashboard.AverageYield(group),
			AverageDurationMin: dashboard.AverageDurationMinutes(group),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Output > out[j].Output })
	return out
}

func machineStats(batches []models.Batch, machines []models.Machine) []models.MachineStats {
	known := make(map[int]models.Machine, len(machines))
	for _, m := range machines {
		known[m.ID] = m
	}

	grouped := make(map[int][]models.Batch)
	order := make([]int, 0)
	for _, b := range batches {
		if b.MachineID == nil {
			continue
		}
		id := *b.MachineID
		if _, ok := known[id]; !ok {
			continue
		}
		if _, seen := grouped[id]; !seen {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], b)
	}

	out := make([]models.MachineStats, 0, len(order))
	for _, id := range order {
		group := grouped[id]
		m := known[id]
		description := ""
		if m.Description != nil {
			description = *m.Description
		}
		out = append(out, models.MachineStats{
			MachineID:   id,
			Code:        m.Code,
			Description: description,
			Batches:     len(group),
			Output:      dashboard.TotalOutput(group),
			Scrap:       dashboard.TotalScrap(group),
			Yield:       dashboard.AverageYield(group),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Output > out[j].Output })
	return out
}
