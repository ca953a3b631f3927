package dashboard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mamadbah2/asigest/internal/domain/models"
)

const (
	maxTopOperators = 5
	maxAnomalies    = 5

	scrapWarningPct = 10.0
	scrapErrorPct   = 20.0

	staleWarningAfter = 4 * time.Hour
	staleErrorAfter   = 8 * time.Hour

	closedStagesWindow = 24 * time.Hour
)

// Compute derives the dashboard record from a snapshot. It never mutates the
// snapshot and returns the same result for the same snapshot and now.
// Calendar-day boundaries are taken in now's location.
func Compute(snap models.Snapshot, now time.Time) models.DashboardResult {
	today := ClosedBetween(snap.Batches.Items, StartOfDay(now), StartOfDay(now).AddDate(0, 0, 1))
	anomalies := detectAnomalies(today, snap.Batches.Items, now)

	return models.DashboardResult{
		KPI: models.KPI{
			ActiveOrders:       countActiveOrders(snap.Orders),
			OpenBatches:        len(openBatches(snap.Batches.Items)),
			StagesClosed24h:    countStagesClosedSince(snap.Stages.Items, now.Add(-closedStagesWindow), now),
			AverageYield:       AverageYield(today),
			AverageDurationMin: AverageDurationMinutes(today),
			TotalOutputToday:   TotalOutput(today),
		},
		Departments:  departmentBreakdown(snap.Stages.Items, snap.StageTypes.Items),
		TopOperators: topOperators(today, snap.Operators.Items),
		Anomalies:    capAnomalies(anomalies),
		ComputedAt:   now,
		FlaggedKeys:  anomalyKeys(anomalies),
	}
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ClosedBetween returns the batches whose end timestamp lies in [from, to).
func ClosedBetween(batches []models.Batch, from, to time.Time) []models.Batch {
	out := make([]models.Batch, 0, len(batches))
	for _, b := range batches {
		if !models.Valid(b.EndedAt) {
			continue
		}
		if b.EndedAt.Before(from) || !b.EndedAt.Before(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// BatchYield is output/input*100, or 0 when input is absent or zero.
func BatchYield(b models.Batch) float64 {
	input := b.Input()
	if input <= 0 {
		return 0
	}
	return float64(b.Output()) / float64(input) * 100
}

// ScrapRate is scrap/input*100, or 0 when input is absent or zero.
func ScrapRate(b models.Batch) float64 {
	input := b.Input()
	if input <= 0 {
		return 0
	}
	return float64(b.Scrap()) / float64(input) * 100
}

// AverageYield is the mean yield over batches with input > 0, rounded to one decimal.
func AverageYield(batches []models.Batch) float64 {
	var sum float64
	var n int
	for _, b := range batches {
		if b.Input() <= 0 {
			continue
		}
		sum += BatchYield(b)
		n++
	}
	if n == 0 {
		return 0
	}
	return Round1(sum / float64(n))
}

// BatchDuration returns end-start, ok is false when either timestamp is missing.
func BatchDuration(b models.Batch) (time.Duration, bool) {
	if !models.Valid(b.StartedAt) || !models.Valid(b.EndedAt) {
		return 0, false
	}
	return b.EndedAt.Sub(b.StartedAt.Time), true
}

// AverageDurationMinutes is the mean batch duration in whole minutes over batches with both timestamps.
func AverageDurationMinutes(batches []models.Batch) int {
	var sum float64
	var n int
	for _, b := range batches {
		d, ok := BatchDuration(b)
		if !ok {
			continue
		}
		sum += d.Minutes()
		n++
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(sum / float64(n)))
}

// TotalOutput sums output quantities, absent values count as zero.
func TotalOutput(batches []models.Batch) int {
	total := 0
	for _, b := range batches {
		total += b.Output()
	}
	return total
}

// TotalScrap sums scrap quantities, absent values count as zero.
func TotalScrap(batches []models.Batch) int {
	total := 0
	for _, b := range batches {
		total += b.Scrap()
	}
	return total
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Percent returns part/total*100 rounded to an integer, 0 when total is 0.
func Percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// DepartmentOf resolves the department tag of a stage type, ALTRO when unknown.
func DepartmentOf(stageTypeID int, types map[int]models.StageType) string {
	st, ok := types[stageTypeID]
	if !ok || st.Department == "" {
		return models.DepartmentOther
	}
	return st.Department
}

// IndexStageTypes maps stage types by id.
func IndexStageTypes(types []models.StageType) map[int]models.StageType {
	out := make(map[int]models.StageType, len(types))
	for _, st := range types {
		out[st.ID] = st
	}
	return out
}

// The orders list is requested already filtered to open orders and capped by
// a limit, so the envelope total wins when the page was truncated.
func countActiveOrders(orders models.List[models.Order]) int {
	active := 0
	for _, o := range orders.Items {
		if !o.Closed() {
			active++
		}
	}
	if active == len(orders.Items) && orders.Total > active {
		return orders.Total
	}
	return active
}

func openBatches(batches []models.Batch) []models.Batch {
	out := make([]models.Batch, 0)
	for _, b := range batches {
		if b.Open() {
			out = append(out, b)
		}
	}
	return out
}

func countStagesClosedSince(stages []models.Stage, from, to time.Time) int {
	n := 0
	for _, s := range stages {
		if !models.Valid(s.ClosedAt) {
			continue
		}
		if s.ClosedAt.Before(from) || s.ClosedAt.After(to) {
			continue
		}
		n++
	}
	return n
}

func departmentBreakdown(stages []models.Stage, types []models.StageType) []models.DepartmentShare {
	index := IndexStageTypes(types)
	counts := make(map[string]int)
	order := make([]string, 0)

	for _, s := range stages {
		dept := DepartmentOf(s.StageTypeID, index)
		if _, seen := counts[dept]; !seen {
			order = append(order, dept)
		}
		counts[dept]++
	}

	out := make([]models.DepartmentShare, 0, len(order))
	for _, dept := range order {
		out = append(out, models.DepartmentShare{
			Department: dept,
			Count:      counts[dept],
			Percentage: Percent(counts[dept], len(stages)),
		})
	}
	return out
}

func topOperators(today []models.Batch, operators []models.Operator) []models.OperatorRank {
	byOperator := make(map[int][]models.Batch)
	for _, b := range today {
		if b.OperatorID == nil {
			continue
		}
		byOperator[*b.OperatorID] = append(byOperator[*b.OperatorID], b)
	}

	ranks := make([]models.OperatorRank, 0)
	for _, op := range operators {
		batches := byOperator[op.ID]
		if len(batches) == 0 {
			continue
		}
		ranks = append(ranks, models.OperatorRank{
			OperatorID:   op.ID,
			Name:         op.DisplayName(),
			Batches:      len(batches),
			AverageYield: AverageYield(batches),
		})
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].Batches > ranks[j].Batches
	})

	if len(ranks) > maxTopOperators {
		ranks = ranks[:maxTopOperators]
	}
	return ranks
}

func detectAnomalies(today, all []models.Batch, now time.Time) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0)

	for _, b := range today {
		if b.Input() <= 0 {
			continue
		}
		rate := ScrapRate(b)
		if rate <= scrapWarningPct {
			continue
		}
		severity := models.SeverityWarning
		if rate > scrapErrorPct {
			severity = models.SeverityError
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:     models.AnomalyScrap,
			Severity: severity,
			Message:  fmt.Sprintf("Lotto #%d: Scarti elevati (%.1f%%)", b.Sequence, rate),
			BatchID:  b.ID,
		})
	}

	for _, b := range all {
		if !b.Open() || !models.Valid(b.StartedAt) {
			continue
		}
		elapsed := now.Sub(b.StartedAt.Time)
		if elapsed <= staleWarningAfter {
			continue
		}
		severity := models.SeverityWarning
		if elapsed > staleErrorAfter {
			severity = models.SeverityError
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:     models.AnomalyStale,
			Severity: severity,
			Message:  fmt.Sprintf("Lotto #%d: Aperto da %dh", b.Sequence, int(elapsed/time.Hour)),
			BatchID:  b.ID,
		})
	}

	return anomalies
}

func capAnomalies(anomalies []models.Anomaly) []models.Anomaly {
	if len(anomalies) > maxAnomalies {
		return anomalies[:maxAnomalies:maxAnomalies]
	}
	return anomalies
}

func anomalyKeys(anomalies []models.Anomaly) []string {
	keys := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		keys = append(keys, a.Key())
	}
	return keys
}
