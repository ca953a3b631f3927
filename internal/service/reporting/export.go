package reporting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mamadbah2/asigest/internal/domain/models"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat is returned by Export for anything but csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

var (
	departmentHeader = []string{"Reparto", "Lotti", "Fasi", "Produzione", "Scarti", "Resa %"}
	operatorHeader   = []string{"Operatore", "Lotti", "Produzione", "Resa %", "Tempo Medio (min)"}
	machineHeader    = []string{"Codice", "Descrizione", "Lotti", "Produzione", "Scarti", "Resa %"}
)

// Filename is the attachment name of an export generated at t.
func Filename(t time.Time, format string) string {
	return fmt.Sprintf("ASI-GEST_Report_%s.%s", t.Format(dateLayout), format)
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Export writes report to w in the requested format.
func Export(w io.Writer, format string, report *models.ProductionReport) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, report)
	case FormatXLSX:
		return WriteXLSX(w, report)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteCSV writes the report as a single CSV document with one block per section.
func WriteCSV(w io.Writer, report *models.ProductionReport) error {
	cw := csv.NewWriter(w)

	rows := [][]string{
		{"ASI-GEST - Report Produzione"},
		{"Periodo: " + report.Summary.Label},
		{},
		{"RIEPILOGO GENERALE"},
	}
	rows = append(rows, summaryRows(report.Summary)...)

	rows = append(rows, []string{}, []string{"STATISTICHE PER REPARTO"}, departmentHeader)
	rows = append(rows, departmentRows(report.Departments)...)

	rows = append(rows, []string{}, []string{"STATISTICHE PER OPERATORE"}, operatorHeader)
	rows = append(rows, operatorRows(report.Operators)...)

	rows = append(rows, []string{}, []string{"STATISTICHE PER MACCHINA"}, machineHeader)
	rows = append(rows, machineRows(report.Machines)...)

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv report: %w", err)
	}
	return nil
}

// WriteXLSX writes the report as a workbook with one sheet per section.
func WriteXLSX(w io.Writer, report *models.ProductionReport) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 2}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{name: "Riepilogo", header: []string{"Voce", "Valore"}, rows: summaryRows(report.Summary)},
		{name: "Reparti", header: departmentHeader, rows: departmentRows(report.Departments)},
		{name: "Operatori", header: operatorHeader, rows: operatorRows(report.Operators)},
		{name: "Macchine", header: machineHeader, rows: machineRows(report.Machines)},
	}

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", sh.name, err)
		}

		if err := writeSheet(f, sh.name, sh.header, sh.rows, headerStyle); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx report: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]string, headerStyle int) error {
	for col, name := range header {
		if err := f.SetCellValue(sheet, cellName(col+1, 1), name); err != nil {
			return fmt.Errorf("write %s header: %w", sheet, err)
		}
	}
	if err := f.SetCellStyle(sheet, "A1", cellName(len(header), 1), headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}

	for r, row := range rows {
		for col, value := range row {
			if err := f.SetCellValue(sheet, cellName(col+1, r+2), cellValue(value)); err != nil {
				return fmt.Errorf("write %s row %d: %w", sheet, r+2, err)
			}
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze %s header: %w", sheet, err)
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	return f.SetColWidth(sheet, "A", lastCol, 18)
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// Numeric strings are stored as numbers so the workbook can be summed.
func cellValue(value string) any {
	if len(value) > 1 && value[0] == '0' && value[1] != '.' {
		return value
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

func summaryRows(s models.ReportSummary) [][]string {
	return [][]string{
		{"Periodo", s.Label},
		{"Lotti Completati", strconv.Itoa(s.Batches)},
		{"Produzione Totale", strconv.Itoa(s.TotalOutput)},
		{"Scarti Totali", strconv.Itoa(s.TotalScrap)},
		{"Resa Media %", formatFloat(s.AverageYield)},
		{"Tempo Medio Lotto (min)", strconv.Itoa(s.AverageDurationMin)},
	}
}

func departmentRows(stats []models.DepartmentStats) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, d := range stats {
		rows = append(rows, []string{
			d.Department,
			strconv.Itoa(d.Batches),
			strconv.Itoa(d.Stages),
			strconv.Itoa(d.Output),
			strconv.Itoa(d.Scrap),
			formatFloat(d.Yield),
		})
	}
	return rows
}

func operatorRows(stats []models.OperatorStats) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, o := range stats {
		rows = append(rows, []string{
			o.Name,
			strconv.Itoa(o.Batches),
			strconv.Itoa(o.Output),
			formatFloat(o.Yield),
			strconv.Itoa(o.AverageDurationMin),
		})
	}
	return rows
}

func machineRows(stats []models.MachineStats) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, m := range stats {
		rows = append(rows, []string{
			m.Code,
			m.Description,
			strconv.Itoa(m.Batches),
			strconv.Itoa(m.Output),
			strconv.Itoa(m.Scrap),
			formatFloat(m.Yield),
		})
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
