package asigest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/asigest/internal/config"
	"github.com/mamadbah2/asigest/internal/domain/models"
)

const (
	pageSize = 100
	maxPages = 500

	ordersPath     = "/api/gestionale/commesse"
	batchesPath    = "/api/lotti"
	stagesPath     = "/api/fasi/"
	stageTypesPath = "/api/fasi-tipo"
	operatorsPath  = "/api/utenti"
	machinesPath   = "/api/macchine"
)

// ErrNotFound is matched by errors.Is for backend 404 responses.
var ErrNotFound = errors.New("resource not found")

// ErrBadRequest is matched by errors.Is for backend 400 responses.
var ErrBadRequest = errors.New("request rejected by backend")

// APIError describes a non-2xx backend response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("asigest api error: status=%d, detail=%s", e.StatusCode, e.Detail)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// OrderFilter narrows the order listing.
type OrderFilter struct {
	Open  *bool
	Limit int
}

// BatchFilter narrows the batch listing.
type BatchFilter struct {
	StageID *int
	Open    *bool
}

// StageFilter narrows the stage listing.
type StageFilter struct {
	BatchID   *int
	Completed *bool
}

// MachineFilter narrows the machine listing.
type MachineFilter struct {
	Department string
	Active     *bool
}

// Client exposes the ASI-GEST backend operations used by the dashboard service.
type Client interface {
	ListOrders(ctx context.Context, filter OrderFilter) (models.List[models.Order], error)
	ListBatches(ctx context.Context, filter BatchFilter) (models.List[models.Batch], error)
	ListStages(ctx context.Context, filter StageFilter) (models.List[models.Stage], error)
	ListStageTypes(ctx context.Context, department string) (models.List[models.StageType], error)
	ListOperators(ctx context.Context, active *bool) (models.List[models.Operator], error)
	ListMachines(ctx context.Context, filter MachineFilter) (models.List[models.Machine], error)
	GetBatch(ctx context.Context, id int) (*models.Batch, error)
	OpenBatch(ctx context.Context, req models.OpenBatchRequest) (*models.Batch, error)
	CloseBatch(ctx context.Context, id int, req models.CloseBatchRequest) (*models.Batch, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a backend client from the configured base URL and timeout.
func NewClient(cfg config.BackendConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)

	return &APIClient{httpClient: restyClient}
}

// apiError mirrors the FastAPI error body; detail is a string or a validation list.
type apiError struct {
	Detail json.RawMessage `json:"detail"`
}

func (c *APIClient) ListOrders(ctx context.Context, filter OrderFilter) (models.List[models.Order], error) {
	params := map[string]string{}
	if filter.Open != nil {
		params["aperte"] = strconv.FormatBool(*filter.Open)
	}
	if filter.Limit > 0 {
		params["limit"] = strconv.Itoa(filter.Limit)
	}

	result := models.List[models.Order]{}
	if err := c.get(ctx, ordersPath, params, &result); err != nil {
		return result, fmt.Errorf("list orders: %w", err)
	}
	return result, nil
}

func (c *APIClient) ListBatches(ctx context.Context, filter BatchFilter) (models.List[models.Batch], error) {
	params := map[string]string{}
	if filter.StageID != nil {
		params["fase_id"] = strconv.Itoa(*filter.StageID)
	}
	if filter.Open != nil {
		params["aperto"] = strconv.FormatBool(*filter.Open)
	}

	result, err := listAll[models.Batch](ctx, c, batchesPath, params)
	if err != nil {
		return result, fmt.Errorf("list batches: %w", err)
	}
	return result, nil
}

func (c *APIClient) ListStages(ctx context.Context, filter StageFilter) (models.List[models.Stage], error) {
	params := map[string]string{}
	if filter.BatchID != nil {
		params["LottoID"] = strconv.Itoa(*filter.BatchID)
	}
	if filter.Completed != nil {
		params["completata"] = strconv.FormatBool(*filter.Completed)
	}

	result, err := listAll[models.Stage](ctx, c, stagesPath, params)
	if err != nil {
		return result, fmt.Errorf("list stages: %w", err)
	}
	return result, nil
}

func (c *APIClient) ListStageTypes(ctx context.Context, department string) (models.List[models.StageType], error) {
	params := map[string]string{}
	if department != "" {
		params["tipo"] = department
	}

	result, err := listAll[models.StageType](ctx, c, stageTypesPath, params)
	if err != nil {
		return result, fmt.Errorf("list stage types: %w", err)
	}
	return result, nil
}

func (c *APIClient) ListOperators(ctx context.Context, active *bool) (models.List[models.Operator], error) {
	params := map[string]string{}
	if active != nil {
		params["attivo"] = strconv.FormatBool(*active)
	}

	result, err := listAll[models.Operator](ctx, c, operatorsPath, params)
	if err != nil {
		return result, fmt.Errorf("list operators: %w", err)
	}
	return result, nil
}

func (c *APIClient) ListMachines(ctx context.Context, filter MachineFilter) (models.List[models.Machine], error) {
	params := map[string]string{}
	if filter.Department != "" {
		params["reparto"] = filter.Department
	}
	if filter.Active != nil {
		params["attiva"] = strconv.FormatBool(*filter.Active)
	}

	result, err := listAll[models.Machine](ctx, c, machinesPath, params)
	if err != nil {
		return result, fmt.Errorf("list machines: %w", err)
	}
	return result, nil
}

func (c *APIClient) GetBatch(ctx context.Context, id int) (*models.Batch, error) {
	result := new(models.Batch)
	if err := c.get(ctx, fmt.Sprintf("%s/%d", batchesPath, id), nil, result); err != nil {
		return nil, fmt.Errorf("get batch %d: %w", id, err)
	}
	return result, nil
}

func (c *APIClient) OpenBatch(ctx context.Context, req models.OpenBatchRequest) (*models.Batch, error) {
	result := new(models.Batch)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(result).
		SetError(apiErr).
		Post(batchesPath)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	if err := checkResponse(resp, apiErr); err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	return result, nil
}

func (c *APIClient) CloseBatch(ctx context.Context, id int, req models.CloseBatchRequest) (*models.Batch, error) {
	result := new(models.Batch)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(result).
		SetError(apiErr).
		Put(fmt.Sprintf("%s/%d/close", batchesPath, id))
	if err != nil {
		return nil, fmt.Errorf("close batch %d: %w", id, err)
	}
	if err := checkResponse(resp, apiErr); err != nil {
		return nil, fmt.Errorf("close batch %d: %w", id, err)
	}
	return result, nil
}

func (c *APIClient) get(ctx context.Context, path string, params map[string]string, result any) error {
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(result).
		SetError(apiErr).
		Get(path)
	if err != nil {
		return err
	}
	return checkResponse(resp, apiErr)
}

// listAll walks the paginated endpoint until every row reported by total is collected.
func listAll[T any](ctx context.Context, c *APIClient, path string, params map[string]string) (models.List[T], error) {
	all := models.List[T]{Items: []T{}}

	for page := 1; page <= maxPages; page++ {
		query := make(map[string]string, len(params)+2)
		for k, v := range params {
			query[k] = v
		}
		query["page"] = strconv.Itoa(page)
		query["page_size"] = strconv.Itoa(pageSize)

		var chunk models.List[T]
		if err := c.get(ctx, path, query, &chunk); err != nil {
			return all, err
		}

		all.Items = append(all.Items, chunk.Items...)
		all.Total = chunk.Total

		if len(chunk.Items) == 0 || len(all.Items) >= chunk.Total {
			break
		}
	}

	all.Page = 1
	all.PageSize = len(all.Items)
	return all, nil
}

func checkResponse(resp *resty.Response, apiErr *apiError) error {
	if resp.StatusCode() < http.StatusBadRequest {
		return nil
	}
	return &APIError{StatusCode: resp.StatusCode(), Detail: apiErr.detail(resp)}
}

func (e *apiError) detail(resp *resty.Response) string {
	if e != nil && len(e.Detail) > 0 {
		var text string
		if err := json.Unmarshal(e.Detail, &text); err == nil {
			return text
		}
		return string(e.Detail)
	}
	return strings.TrimSpace(resp.String())
}
