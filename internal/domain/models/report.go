package models

import (
	"strconv"
	"time"
)

// Report periods.
const (
	PeriodToday  = "oggi"
	Period7Days  = "7giorni"
	Period30Days = "30giorni"
	PeriodCustom = "custom"
)

// ReportSummary is the general section of a period report.
type ReportSummary struct {
	Period             string    `json:"period"`
	Label              string    `json:"label"`
	From               time.Time `json:"from"`
	To                 time.Time `json:"to"`
	Batches            int       `json:"batches"`
	TotalOutput        int       `json:"total_output"`
	TotalScrap         int       `json:"total_scrap"`
	AverageYield       float64   `json:"average_yield"`
	AverageDurationMin int       `json:"average_duration_min"`
}

// DepartmentStats aggregates the batches of one department in a period.
type DepartmentStats struct {
	Department string  `json:"department"`
	Batches    int     `json:"batches"`
	Stages     int     `json:"stages"`
	Output     int     `json:"output"`
	Scrap      int     `json:"scrap"`
	Yield      float64 `json:"yield"`
}

// OperatorStats aggregates the batches closed by one operator in a period.
type OperatorStats struct {
	OperatorID         int     `json:"operator_id"`
	Name               string  `json:"name"`
	Batches            int     `json:"batches"`
	Output             int     `json:"output"`
	Yield              float64 `json:"yield"`
	AverageDurationMin int     `json:"average_duration_min"`
}

// MachineStats aggregates the batches run on one machine in a period.
type MachineStats struct {
	MachineID   int     `json:"machine_id"`
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Batches     int     `json:"batches"`
	Output      int     `json:"output"`
	Scrap       int     `json:"scrap"`
	Yield       float64 `json:"yield"`
}

// ProductionReport is the full period report.
type ProductionReport struct {
	Summary     ReportSummary     `json:"summary"`
	Departments []DepartmentStats `json:"departments"`
	Operators   []OperatorStats   `json:"operators"`
	Machines    []MachineStats    `json:"machines"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// DailyReport is the archived end-of-day production summary.
type DailyReport struct {
	Date               time.Time         `bson:"date" json:"date"`
	Batches            int               `bson:"batches" json:"batches"`
	TotalOutput        int               `bson:"total_output" json:"total_output"`
	TotalScrap         int               `bson:"total_scrap" json:"total_scrap"`
	AverageYield       float64           `bson:"average_yield" json:"average_yield"`
	AverageDurationMin int               `bson:"average_duration_min" json:"average_duration_min"`
	Departments        []DepartmentStats `bson:"departments" json:"departments"`
	CreatedAt          time.Time         `bson:"created_at" json:"created_at"`
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
