package models

import "time"

// Anomaly kinds and severities.
const (
	AnomalyScrap = "scarto"
	AnomalyStale = "tempo"

	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Snapshot holds the five collections a dashboard cycle is computed from.
type Snapshot struct {
	Orders     List[Order]
	Batches    List[Batch]
	Stages     List[Stage]
	StageTypes List[StageType]
	Operators  List[Operator]
}

// KPI groups the primary dashboard counters.
type KPI struct {
	ActiveOrders       int     `json:"active_orders" bson:"active_orders"`
	OpenBatches        int     `json:"open_batches" bson:"open_batches"`
	StagesClosed24h    int     `json:"stages_closed_24h" bson:"stages_closed_24h"`
	AverageYield       float64 `json:"average_yield" bson:"average_yield"`
	AverageDurationMin int     `json:"average_duration_min" bson:"average_duration_min"`
	TotalOutputToday   int     `json:"total_output_today" bson:"total_output_today"`
}

// DepartmentShare is the stage count of one department and its share of all stages.
type DepartmentShare struct {
	Department string `json:"department"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// OperatorRank summarises today's closed batches of one operator.
type OperatorRank struct {
	OperatorID   int     `json:"operator_id"`
	Name         string  `json:"name"`
	Batches      int     `json:"batches"`
	AverageYield float64 `json:"average_yield"`
}

// Anomaly is a batch flagged by one of the threshold rules.
type Anomaly struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	BatchID  int    `json:"batch_id"`
}

// Key identifies the anomaly independently of its wording.
func (a Anomaly) Key() string {
	return a.Type + ":" + itoa(a.BatchID)
}

// DashboardResult is the derived record rendered by the dashboard.
type DashboardResult struct {
	KPI          KPI               `json:"kpi"`
	Departments  []DepartmentShare `json:"departments"`
	TopOperators []OperatorRank    `json:"top_operators"`
	Anomalies    []Anomaly         `json:"anomalies"`
	ComputedAt   time.Time         `json:"computed_at"`

	// FlaggedKeys lists the keys of every anomaly detected, including those
	// cut from Anomalies by the display cap.
	FlaggedKeys []string `json:"-"`
}
