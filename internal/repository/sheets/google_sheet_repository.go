package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/asigest/internal/config"
	"github.com/mamadbah2/asigest/internal/domain/models"
)

// DailyRange is the append target of the daily production archive.
const DailyRange = "Produzione!A:H"

// Repository defines the persistence operations supported by the Google Sheets adapter.
type Repository interface {
	WriteRow(ctx context.Context, sheetRange string, values []interface{}) error
	AppendDailySummary(ctx context.Context, report models.DailyReport) error
}

// GoogleSheetRepository implements the Repository interface using the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// WriteRow appends the provided values to the supplied sheet range.
func (r *GoogleSheetRepository) WriteRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into range %s: %w", sheetRange, err)
	}

	r.logger.Debug("row appended to sheet", zap.String("range", sheetRange))
	return nil
}

// AppendDailySummary appends one archive row for report.
func (r *GoogleSheetRepository) AppendDailySummary(ctx context.Context, report models.DailyReport) error {
	return r.WriteRow(ctx, DailyRange, DailyRow(report))
}

// DailyRow lays out a daily report as the eight archive columns:
// date, batches, output, scrap, yield, duration, departments, created at.
func DailyRow(report models.DailyReport) []interface{} {
	departments := make([]string, 0, len(report.Departments))
	for _, d := range report.Departments {
		departments = append(departments, fmt.Sprintf("%s:%d", d.Department, d.Output))
	}

	return []interface{}{
		report.Date.Format("2006-01-02"),
		report.Batches,
		report.TotalOutput,
		report.TotalScrap,
		report.AverageYield,
		report.AverageDurationMin,
		strings.Join(departments, " "),
		report.CreatedAt.Format(time.RFC3339),
	}
}
