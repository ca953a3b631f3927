package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/internal/server/sse"
	"github.com/mamadbah2/asigest/internal/service/dashboard"
	"github.com/mamadbah2/asigest/internal/service/production"
	"github.com/mamadbah2/asigest/internal/service/reporting"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) Current() dashboard.State {
	return m.Called().Get(0).(dashboard.State)
}

func (m *MockDashboardService) Refresh(ctx context.Context) (dashboard.State, error) {
	args := m.Called(ctx)
	return args.Get(0).(dashboard.State), args.Error(1)
}

type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) Generate(ctx context.Context, period, from, to string) (*models.ProductionReport, error) {
	args := m.Called(ctx, period, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductionReport), args.Error(1)
}

type MockReportArchive struct {
	mock.Mock
}

func (m *MockReportArchive) RecentDailyReports(ctx context.Context, limit int) ([]models.DailyReport, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DailyReport), args.Error(1)
}

type MockBatchService struct {
	mock.Mock
}

func (m *MockBatchService) OpenBatch(ctx context.Context, req models.OpenBatchRequest) (*models.Batch, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Batch), args.Error(1)
}

func (m *MockBatchService) CloseBatch(ctx context.Context, id int, req models.CloseBatchRequest) (*models.Batch, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Batch), args.Error(1)
}

func (m *MockBatchService) GetBatch(ctx context.Context, id int) (*production.BatchDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*production.BatchDetail), args.Error(1)
}

func perform(engine *gin.Engine, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	return rr
}

func sampleState() dashboard.State {
	return dashboard.State{
		Result:    &models.DashboardResult{KPI: models.KPI{ActiveOrders: 3, OpenBatches: 2}},
		Sequence:  4,
		UpdatedAt: time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC),
	}
}

func dashboardEngine(svc DashboardService, hub *sse.Hub) (*gin.Engine, *DashboardHandler) {
	h := NewDashboardHandler(svc, hub, nil)
	r := gin.New()
	r.GET("/api/dashboard", h.Get)
	r.POST("/api/dashboard/refresh", h.Refresh)
	r.GET("/api/dashboard/stream", h.Stream)
	return r, h
}

func TestDashboardGet(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Current").Return(sampleState())
	r, _ := dashboardEngine(svc, sse.NewHub(nil))

	rr := perform(r, http.MethodGet, "/api/dashboard", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	var state dashboard.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, uint64(4), state.Sequence)
	assert.Equal(t, 3, state.Result.KPI.ActiveOrders)
}

func TestDashboardGet_NotReady(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Current").Return(dashboard.State{Stale: true, Error: dashboard.LoadErrorMessage})
	r, _ := dashboardEngine(svc, sse.NewHub(nil))

	rr := perform(r, http.MethodGet, "/api/dashboard", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), dashboard.LoadErrorMessage)
}

func TestDashboardRefresh(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Refresh", mock.Anything).Return(sampleState(), nil).Once()
	r, _ := dashboardEngine(svc, sse.NewHub(nil))

	rr := perform(r, http.MethodPost, "/api/dashboard/refresh", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestDashboardRefresh_SourceFailure(t *testing.T) {
	stale := sampleState()
	stale.Stale = true
	stale.Error = dashboard.LoadErrorMessage

	svc := new(MockDashboardService)
	svc.On("Refresh", mock.Anything).Return(stale, errors.New("refresh dashboard: list batches: timeout")).Once()
	r, _ := dashboardEngine(svc, sse.NewHub(nil))

	rr := perform(r, http.MethodPost, "/api/dashboard/refresh", nil)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	var body struct {
		Error string          `json:"error"`
		State dashboard.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, dashboard.LoadErrorMessage, body.Error)
	assert.Equal(t, 3, body.State.Result.KPI.ActiveOrders)
}

func TestDashboardStream(t *testing.T) {
	svc := new(MockDashboardService)
	svc.On("Current").Return(sampleState())
	hub := sse.NewHub(nil)
	r, h := dashboardEngine(svc, hub)
	h.heartbeat = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/stream", nil).WithContext(ctx)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(rr, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	hub.PublishDashboard(context.Background(), models.DashboardResult{KPI: models.KPI{OpenBatches: 9}})
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	body := rr.Body.String()
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: connected")
	assert.Equal(t, 2, strings.Count(body, "event: dashboard"))
	assert.Contains(t, body, `"open_batches":9`)
	assert.Contains(t, body, ": keepalive")
	assert.Zero(t, hub.Clients())
}

func reportEngine(svc ReportService, archive ReportArchive) *gin.Engine {
	h := NewReportHandler(svc, archive, nil)
	r := gin.New()
	r.GET("/api/report", h.Get)
	r.GET("/api/report/export", h.Export)
	r.GET("/api/report/history", h.History)
	return r
}

func sampleReport() *models.ProductionReport {
	return &models.ProductionReport{
		Summary:     models.ReportSummary{Period: models.PeriodToday, Label: "Oggi", Batches: 2, TotalOutput: 125},
		Departments: []models.DepartmentStats{{Department: "SMD", Batches: 2, Output: 125}},
		GeneratedAt: time.Date(2025, time.March, 10, 18, 0, 0, 0, time.UTC),
	}
}

func TestReportGet(t *testing.T) {
	svc := new(MockReportService)
	svc.On("Generate", mock.Anything, "custom", "2025-03-01", "2025-03-10").Return(sampleReport(), nil).Once()

	rr := perform(reportEngine(svc, nil), http.MethodGet, "/api/report?period=custom&from=2025-03-01&to=2025-03-10", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total_output":125`)
	svc.AssertExpectations(t)
}

func TestReportGet_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "invalid period", err: fmt.Errorf("%w: unknown period \"anno\"", reporting.ErrInvalidPeriod), code: http.StatusBadRequest},
		{name: "backend down", err: errors.New("load report data: connection refused"), code: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockReportService)
			svc.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			rr := perform(reportEngine(svc, nil), http.MethodGet, "/api/report?period=anno", nil)
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestReportExport(t *testing.T) {
	tests := []struct {
		format      string
		contentType string
		filename    string
	}{
		{format: "csv", contentType: "text/csv; charset=utf-8", filename: "ASI-GEST_Report_2025-03-10.csv"},
		{format: "xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename: "ASI-GEST_Report_2025-03-10.xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			svc := new(MockReportService)
			svc.On("Generate", mock.Anything, "oggi", "", "").Return(sampleReport(), nil).Once()

			rr := perform(reportEngine(svc, nil), http.MethodGet, "/api/report/export?period=oggi&format="+tt.format, nil)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.contentType, rr.Header().Get("Content-Type"))
			assert.Equal(t, `attachment; filename="`+tt.filename+`"`, rr.Header().Get("Content-Disposition"))
			assert.NotZero(t, rr.Body.Len())
		})
	}
}

func TestReportExport_BadFormat(t *testing.T) {
	svc := new(MockReportService)

	rr := perform(reportEngine(svc, nil), http.MethodGet, "/api/report/export?format=pdf", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReportHistory(t *testing.T) {
	archive := new(MockReportArchive)
	archive.On("RecentDailyReports", mock.Anything, 7).
		Return([]models.DailyReport{{Batches: 3}, {Batches: 5}}, nil).Once()

	rr := perform(reportEngine(new(MockReportService), archive), http.MethodGet, "/api/report/history?limit=7", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":2`)

	rr = perform(reportEngine(new(MockReportService), archive), http.MethodGet, "/api/report/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReportHistory_LimitClamped(t *testing.T) {
	archive := new(MockReportArchive)
	archive.On("RecentDailyReports", mock.Anything, 365).Return([]models.DailyReport{}, nil).Once()
	archive.On("RecentDailyReports", mock.Anything, 30).Return([]models.DailyReport{}, nil).Once()

	rr := perform(reportEngine(new(MockReportService), archive), http.MethodGet, "/api/report/history?limit=100000", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = perform(reportEngine(new(MockReportService), archive), http.MethodGet, "/api/report/history", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	archive.AssertExpectations(t)
}

func TestReportHistory_NotConfigured(t *testing.T) {
	rr := perform(reportEngine(new(MockReportService), nil), http.MethodGet, "/api/report/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func batchEngine(svc BatchService) *gin.Engine {
	h := NewBatchHandler(svc, nil)
	r := gin.New()
	r.POST("/api/lotti", h.Open)
	r.GET("/api/lotti/:id", h.Get)
	r.PUT("/api/lotti/:id/close", h.Close)
	return r
}

func TestBatchOpen(t *testing.T) {
	svc := new(MockBatchService)
	svc.On("OpenBatch", mock.Anything, mock.MatchedBy(func(req models.OpenBatchRequest) bool {
		return req.StageID == 3 && models.IntOrZero(req.QtyInput) == 100
	})).Return(&models.Batch{ID: 12, StageID: 3}, nil).Once()

	rr := perform(batchEngine(svc), http.MethodPost, "/api/lotti", []byte(`{"FaseID":3,"QtaInput":100}`))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"LottoID":12`)
}

func TestBatchOpen_MissingStage(t *testing.T) {
	svc := new(MockBatchService)

	rr := perform(batchEngine(svc), http.MethodPost, "/api/lotti", []byte(`{"QtaInput":100}`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "OpenBatch", mock.Anything, mock.Anything)
}

func TestBatchClose_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "ok", code: http.StatusOK},
		{name: "invalid", err: fmt.Errorf("%w: quantities must not be negative", production.ErrInvalidBatch), code: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("%w: 8", production.ErrBatchNotFound), code: http.StatusNotFound},
		{name: "closed", err: fmt.Errorf("%w: 8", production.ErrBatchClosed), code: http.StatusConflict},
		{name: "backend", err: errors.New("close batch 8: connection reset"), code: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockBatchService)
			req := models.CloseBatchRequest{QtyOutput: models.IntPtr(95), QtyScrap: 5}
			if tt.err != nil {
				svc.On("CloseBatch", mock.Anything, 8, req).Return(nil, tt.err).Once()
			} else {
				svc.On("CloseBatch", mock.Anything, 8, req).Return(&models.Batch{ID: 8}, nil).Once()
			}

			rr := perform(batchEngine(svc), http.MethodPut, "/api/lotti/8/close", []byte(`{"QtaOutput":95,"QtaScarti":5}`))
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestBatchClose_MissingOutput(t *testing.T) {
	for _, body := range []string{`{}`, `{"QtaScarti":4}`} {
		svc := new(MockBatchService)

		rr := perform(batchEngine(svc), http.MethodPut, "/api/lotti/8/close", []byte(body))

		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		svc.AssertNotCalled(t, "CloseBatch", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestBatchClose_ZeroOutputAccepted(t *testing.T) {
	svc := new(MockBatchService)
	req := models.CloseBatchRequest{QtyOutput: models.IntPtr(0), QtyScrap: 40}
	svc.On("CloseBatch", mock.Anything, 8, req).Return(&models.Batch{ID: 8}, nil).Once()

	rr := perform(batchEngine(svc), http.MethodPut, "/api/lotti/8/close", []byte(`{"QtaOutput":0,"QtaScarti":40}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestBatchClose_InvalidID(t *testing.T) {
	rr := perform(batchEngine(new(MockBatchService)), http.MethodPut, "/api/lotti/abc/close", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBatchGet(t *testing.T) {
	svc := new(MockBatchService)
	svc.On("GetBatch", mock.Anything, 5).Return(&production.BatchDetail{
		Batch:       models.Batch{ID: 5},
		Yield:       93.3,
		DurationMin: models.IntPtr(45),
	}, nil).Once()

	rr := perform(batchEngine(svc), http.MethodGet, "/api/lotti/5", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"resa":93.3`)
	assert.Contains(t, rr.Body.String(), `"durata_min":45`)
}
