package dashboard

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/asigest/internal/domain/models"
)

var testNow = time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)

func closedBatch(id, seq, input, output, scrap int, start, end time.Time) models.Batch {
	return models.Batch{
		ID:        id,
		StageID:   1,
		Sequence:  seq,
		StartedAt: models.NewTime(start),
		EndedAt:   models.NewTime(end),
		QtyInput:  models.IntPtr(input),
		QtyOutput: models.IntPtr(output),
		QtyScrap:  models.IntPtr(scrap),
	}
}

func openBatch(id, seq int, start time.Time) models.Batch {
	return models.Batch{ID: id, StageID: 1, Sequence: seq, StartedAt: models.NewTime(start)}
}

func withOperator(b models.Batch, operatorID int) models.Batch {
	b.OperatorID = models.IntPtr(operatorID)
	return b
}

func snapshotOf(batches ...models.Batch) models.Snapshot {
	return models.Snapshot{Batches: models.List[models.Batch]{Items: batches, Total: len(batches)}}
}

func TestCompute_YieldAndScrapScenario(t *testing.T) {
	a := closedBatch(1, 1, 100, 95, 5, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))
	b := closedBatch(2, 2, 50, 30, 20, testNow.Add(-3*time.Hour), testNow.Add(-2*time.Hour))

	res := Compute(snapshotOf(a, b), testNow)

	assert.Equal(t, 77.5, res.KPI.AverageYield)
	assert.Equal(t, 60, res.KPI.AverageDurationMin)
	assert.Equal(t, 125, res.KPI.TotalOutputToday)
	assert.Equal(t, 0, res.KPI.OpenBatches)

	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, models.Anomaly{
		Type:     models.AnomalyScrap,
		Severity: models.SeverityError,
		Message:  "Lotto #2: Scarti elevati (40.0%)",
		BatchID:  2,
	}, res.Anomalies[0])
}

func TestCompute_ScrapWarningBand(t *testing.T) {
	warn := closedBatch(1, 7, 100, 85, 15, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))
	edge := closedBatch(2, 8, 100, 90, 10, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))
	upper := closedBatch(3, 9, 100, 80, 20, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))

	res := Compute(snapshotOf(warn, edge, upper), testNow)

	require.Len(t, res.Anomalies, 2)
	assert.Equal(t, models.SeverityWarning, res.Anomalies[0].Severity)
	assert.Equal(t, "Lotto #7: Scarti elevati (15.0%)", res.Anomalies[0].Message)
	// exactly 20% is still a warning
	assert.Equal(t, models.SeverityWarning, res.Anomalies[1].Severity)
	assert.Equal(t, 3, res.Anomalies[1].BatchID)
}

func TestCompute_StaleOpenBatch(t *testing.T) {
	tests := []struct {
		name     string
		openFor  time.Duration
		want     bool
		severity string
		message  string
	}{
		{name: "fresh", openFor: 3 * time.Hour},
		{name: "exactly four hours", openFor: 4 * time.Hour},
		{name: "five hours", openFor: 5 * time.Hour, want: true, severity: models.SeverityWarning, message: "Lotto #3: Aperto da 5h"},
		{name: "eight and a half hours", openFor: 8*time.Hour + 30*time.Minute, want: true, severity: models.SeverityError, message: "Lotto #3: Aperto da 8h"},
		{name: "twelve hours", openFor: 12 * time.Hour, want: true, severity: models.SeverityError, message: "Lotto #3: Aperto da 12h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compute(snapshotOf(openBatch(10, 3, testNow.Add(-tt.openFor))), testNow)

			assert.Equal(t, 1, res.KPI.OpenBatches)
			if !tt.want {
				assert.Empty(t, res.Anomalies)
				return
			}
			require.Len(t, res.Anomalies, 1)
			assert.Equal(t, models.AnomalyStale, res.Anomalies[0].Type)
			assert.Equal(t, tt.severity, res.Anomalies[0].Severity)
			assert.Equal(t, tt.message, res.Anomalies[0].Message)
			assert.Equal(t, 10, res.Anomalies[0].BatchID)
		})
	}
}

func TestCompute_ZeroInputExcludedFromYield(t *testing.T) {
	withInput := closedBatch(1, 1, 200, 150, 0, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))
	zeroInput := closedBatch(2, 2, 0, 40, 0, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))
	noInput := closedBatch(3, 3, 0, 10, 0, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))
	noInput.QtyInput = nil
	noInput.QtyOutput = nil

	res := Compute(snapshotOf(withInput, zeroInput, noInput), testNow)

	assert.Equal(t, 75.0, res.KPI.AverageYield)
	assert.Equal(t, 190, res.KPI.TotalOutputToday)
	assert.Empty(t, res.Anomalies)
}

func TestCompute_NoYieldWithoutInput(t *testing.T) {
	b := closedBatch(1, 1, 0, 10, 5, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))

	res := Compute(snapshotOf(b), testNow)

	assert.Zero(t, res.KPI.AverageYield)
	assert.Empty(t, res.Anomalies)
}

func TestCompute_OnlyTodayCounts(t *testing.T) {
	midnight := StartOfDay(testNow)
	yesterday := closedBatch(1, 1, 100, 10, 50, midnight.Add(-3*time.Hour), midnight.Add(-time.Minute))
	today := closedBatch(2, 2, 100, 90, 0, midnight.Add(-time.Hour), midnight)

	res := Compute(snapshotOf(yesterday, today), testNow)

	assert.Equal(t, 90, res.KPI.TotalOutputToday)
	assert.Equal(t, 90.0, res.KPI.AverageYield)
	assert.Equal(t, 60, res.KPI.AverageDurationMin)
	assert.Empty(t, res.Anomalies)
}

func TestCompute_DurationSkipsMissingTimestamps(t *testing.T) {
	a := closedBatch(1, 1, 10, 10, 0, testNow.Add(-50*time.Minute), testNow.Add(-10*time.Minute))
	b := closedBatch(2, 2, 10, 10, 0, testNow, testNow)
	b.StartedAt = nil
	c := closedBatch(3, 3, 10, 10, 0, testNow.Add(-90*time.Second), testNow)

	res := Compute(snapshotOf(a, b, c), testNow)

	// (40 + 1.5) / 2 = 20.75
	assert.Equal(t, 21, res.KPI.AverageDurationMin)
}

func TestCompute_Counters(t *testing.T) {
	snap := snapshotOf(
		openBatch(1, 1, testNow.Add(-time.Hour)),
		openBatch(2, 2, testNow.Add(-2*time.Hour)),
		closedBatch(3, 3, 10, 10, 0, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour)),
	)
	snap.Orders = models.List[models.Order]{
		Items: []models.Order{{ID: 1}, {ID: 2}, {ID: 3, ClosedFlag: 1}},
		Total: 3,
	}
	snap.Stages = models.List[models.Stage]{Items: []models.Stage{
		{ID: 1, ClosedAt: models.NewTime(testNow.Add(-23 * time.Hour))},
		{ID: 2, ClosedAt: models.NewTime(testNow.Add(-25 * time.Hour))},
		{ID: 3, ClosedAt: models.NewTime(testNow)},
		{ID: 4},
	}}

	res := Compute(snap, testNow)

	assert.Equal(t, 2, res.KPI.ActiveOrders)
	assert.Equal(t, 2, res.KPI.OpenBatches)
	assert.Equal(t, 2, res.KPI.StagesClosed24h)
}

func TestCompute_ActiveOrdersUsesEnvelopeTotalWhenTruncated(t *testing.T) {
	snap := models.Snapshot{Orders: models.List[models.Order]{
		Items: []models.Order{{ID: 1}, {ID: 2}},
		Total: 740,
	}}

	assert.Equal(t, 740, Compute(snap, testNow).KPI.ActiveOrders)
}

func TestCompute_DepartmentBreakdown(t *testing.T) {
	snap := models.Snapshot{
		Stages: models.List[models.Stage]{Items: []models.Stage{
			{ID: 1, StageTypeID: 10},
			{ID: 2, StageTypeID: 20},
			{ID: 3, StageTypeID: 10},
			{ID: 4, StageTypeID: 99},
			{ID: 5, StageTypeID: 30},
			{ID: 6, StageTypeID: 10},
		}},
		StageTypes: models.List[models.StageType]{Items: []models.StageType{
			{ID: 10, Department: models.DepartmentSMD},
			{ID: 20, Department: models.DepartmentPTH},
			{ID: 30, Department: models.DepartmentControl},
		}},
	}

	res := Compute(snap, testNow)

	assert.Equal(t, []models.DepartmentShare{
		{Department: models.DepartmentSMD, Count: 3, Percentage: 50},
		{Department: models.DepartmentPTH, Count: 1, Percentage: 17},
		{Department: models.DepartmentOther, Count: 1, Percentage: 17},
		{Department: models.DepartmentControl, Count: 1, Percentage: 17},
	}, res.Departments)

	sum := 0
	for _, d := range res.Departments {
		sum += d.Percentage
	}
	assert.InDelta(t, 100, sum, float64(len(res.Departments)))
}

func TestCompute_NoStages(t *testing.T) {
	res := Compute(models.Snapshot{}, testNow)

	assert.NotNil(t, res.Departments)
	assert.Empty(t, res.Departments)
	assert.NotNil(t, res.TopOperators)
	assert.NotNil(t, res.Anomalies)
	assert.Equal(t, models.KPI{}, res.KPI)
}

func TestCompute_TopOperators(t *testing.T) {
	operators := make([]models.Operator, 0, 7)
	for i := 1; i <= 7; i++ {
		operators = append(operators, models.Operator{ID: i, FullName: fmt.Sprintf("Operatore %d", i)})
	}
	// batches per operator: 1→2, 2→4, 3→2, 4→1, 5→3, 6→0, 7→2
	perOperator := map[int]int{1: 2, 2: 4, 3: 2, 4: 1, 5: 3, 7: 2}

	var batches []models.Batch
	id := 1
	for op := 1; op <= 7; op++ {
		for n := 0; n < perOperator[op]; n++ {
			b := closedBatch(id, id, 100, 90+op%2*10, 0, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))
			batches = append(batches, withOperator(b, op))
			id++
		}
	}
	snap := snapshotOf(batches...)
	snap.Operators = models.List[models.Operator]{Items: operators, Total: len(operators)}

	res := Compute(snap, testNow)

	require.Len(t, res.TopOperators, 5)
	ids := make([]int, 0, len(res.TopOperators))
	for _, r := range res.TopOperators {
		ids = append(ids, r.OperatorID)
	}
	assert.Equal(t, []int{2, 5, 1, 3, 7}, ids)
	assert.Equal(t, "Operatore 2", res.TopOperators[0].Name)
	assert.Equal(t, 4, res.TopOperators[0].Batches)
	assert.Equal(t, 90.0, res.TopOperators[0].AverageYield)
	assert.Equal(t, 100.0, res.TopOperators[2].AverageYield)
}

func TestCompute_TopOperatorsSkipsUnknownAndUnassigned(t *testing.T) {
	known := withOperator(closedBatch(1, 1, 10, 10, 0, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour)), 1)
	unknown := withOperator(closedBatch(2, 2, 10, 10, 0, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour)), 42)
	unassigned := closedBatch(3, 3, 10, 10, 0, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour))

	snap := snapshotOf(known, unknown, unassigned)
	snap.Operators = models.List[models.Operator]{Items: []models.Operator{{ID: 1, Username: "mrossi"}}}

	res := Compute(snap, testNow)

	require.Len(t, res.TopOperators, 1)
	assert.Equal(t, "mrossi", res.TopOperators[0].Name)
	assert.Equal(t, 1, res.TopOperators[0].Batches)
}

func TestCompute_AnomalyOrderAndCap(t *testing.T) {
	var batches []models.Batch
	for i := 1; i <= 2; i++ {
		batches = append(batches, openBatch(100+i, 100+i, testNow.Add(-6*time.Hour)))
	}
	for i := 1; i <= 4; i++ {
		batches = append(batches, closedBatch(i, i, 100, 70, 30, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour)))
	}

	res := Compute(snapshotOf(batches...), testNow)

	require.Len(t, res.Anomalies, 5)
	for i := 0; i < 4; i++ {
		assert.Equal(t, models.AnomalyScrap, res.Anomalies[i].Type)
		assert.Equal(t, i+1, res.Anomalies[i].BatchID)
	}
	assert.Equal(t, models.AnomalyStale, res.Anomalies[4].Type)
	assert.Equal(t, 101, res.Anomalies[4].BatchID)

	assert.Len(t, res.FlaggedKeys, 6)
	assert.Contains(t, res.FlaggedKeys, models.Anomaly{Type: models.AnomalyStale, BatchID: 102}.Key())
}

func TestCompute_DeterministicAndNonMutating(t *testing.T) {
	build := func() models.Snapshot {
		snap := snapshotOf(
			withOperator(closedBatch(1, 1, 100, 95, 5, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour)), 1),
			withOperator(closedBatch(2, 2, 50, 30, 20, testNow.Add(-3*time.Hour), testNow.Add(-2*time.Hour)), 2),
			openBatch(3, 3, testNow.Add(-9*time.Hour)),
		)
		snap.Operators = models.List[models.Operator]{Items: []models.Operator{{ID: 1, FullName: "A"}, {ID: 2, FullName: "B"}}}
		snap.Stages = models.List[models.Stage]{Items: []models.Stage{{ID: 1, StageTypeID: 1}}}
		snap.StageTypes = models.List[models.StageType]{Items: []models.StageType{{ID: 1, Department: models.DepartmentSMD}}}
		return snap
	}

	snap := build()
	first := Compute(snap, testNow)
	second := Compute(snap, testNow)

	assert.Equal(t, first, second)
	assert.Equal(t, build(), snap)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(3, 0))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(4, 4))
}

func TestStartOfDayKeepsLocation(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	local := time.Date(2025, time.March, 10, 0, 30, 0, 0, rome)
	start := StartOfDay(local)

	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, rome), start)
	assert.True(t, start.Before(local))
}
