package forecastsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/pkg/httputil"
	"github.com/wonny/demandcast/pkg/logger"
)

// Client hosted forecasting service REST client
// ⭐ SSOT: 예측 서비스 호출은 이 클라이언트에서만
type Client struct {
	http    *httputil.Client
	baseURL string
	logger  *logger.Logger
}

// NewClient creates a client; httpClient carries auth headers and the rate limiter
func NewClient(baseURL string, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log,
	}
}

type createResponse struct {
	ARN string `json:"arn"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateDatasetGroup POST /dataset-groups
func (c *Client) CreateDatasetGroup(ctx context.Context, spec contracts.DatasetGroupSpec) (string, error) {
	return c.create(ctx, contracts.KindDatasetGroup, spec)
}

// CreateDataset POST /datasets
func (c *Client) CreateDataset(ctx context.Context, spec contracts.DatasetSpec) (string, error) {
	return c.create(ctx, contracts.KindDataset, spec)
}

// UpdateDatasetGroup POST /dataset-groups/update
func (c *Client) UpdateDatasetGroup(ctx context.Context, groupARN string, datasetARNs []string) error {
	body := map[string]interface{}{
		"DatasetGroupArn": groupARN,
		"DatasetArns":     datasetARNs,
	}
	resp, err := c.http.PostJSON(ctx, c.baseURL+"/dataset-groups/update", body)
	if err != nil {
		return fmt.Errorf("update dataset group: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("update dataset group: %w", err)
	}
	return httputil.DecodeJSON(resp, nil)
}

// CreateDatasetImportJob POST /dataset-import-jobs
func (c *Client) CreateDatasetImportJob(ctx context.Context, spec contracts.ImportJobSpec) (string, error) {
	return c.create(ctx, contracts.KindDatasetImportJob, spec)
}

// CreatePredictor POST /predictors
func (c *Client) CreatePredictor(ctx context.Context, spec contracts.PredictorSpec) (string, error) {
	return c.create(ctx, contracts.KindPredictor, spec)
}

// CreateForecast POST /forecasts
func (c *Client) CreateForecast(ctx context.Context, spec contracts.ForecastSpec) (string, error) {
	return c.create(ctx, contracts.KindForecast, spec)
}

// CreateForecastExportJob POST /forecast-export-jobs
func (c *Client) CreateForecastExportJob(ctx context.Context, spec contracts.ExportJobSpec) (string, error) {
	return c.create(ctx, contracts.KindForecastExportJob, spec)
}

// Describe GET /<kind>?arn=
func (c *Client) Describe(ctx context.Context, kind contracts.ResourceKind, arn string) (contracts.ResourceStatus, error) {
	resp, err := c.http.Get(ctx, c.resourceURL(kind, arn))
	if err != nil {
		return contracts.ResourceStatus{}, fmt.Errorf("describe %s: %w", kind, err)
	}
	if err := checkStatus(resp); err != nil {
		return contracts.ResourceStatus{}, fmt.Errorf("describe %s %s: %w", kind, arn, err)
	}

	var status contracts.ResourceStatus
	if err := httputil.DecodeJSON(resp, &status); err != nil {
		return contracts.ResourceStatus{}, fmt.Errorf("describe %s: %w", kind, err)
	}
	if status.ARN == "" {
		status.ARN = arn
	}
	return status, nil
}

// Delete DELETE /<kind>?arn=
func (c *Client) Delete(ctx context.Context, kind contracts.ResourceKind, arn string) error {
	resp, err := c.http.Delete(ctx, c.resourceURL(kind, arn))
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, arn, err)
	}
	return httputil.DecodeJSON(resp, nil)
}

func (c *Client) create(ctx context.Context, kind contracts.ResourceKind, spec interface{}) (string, error) {
	resp, err := c.http.PostJSON(ctx, c.collectionURL(kind), spec)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", kind, err)
	}
	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("create %s: %w", kind, err)
	}

	var out createResponse
	if err := httputil.DecodeJSON(resp, &out); err != nil {
		return "", fmt.Errorf("create %s: %w", kind, err)
	}
	if out.ARN == "" {
		return "", fmt.Errorf("create %s: empty arn in response", kind)
	}

	c.logger.WithFields(map[string]interface{}{
		"kind": string(kind),
		"arn":  out.ARN,
	}).Debug("Remote resource created")
	return out.ARN, nil
}

func (c *Client) collectionURL(kind contracts.ResourceKind) string {
	return c.baseURL + "/" + collection(kind)
}

func (c *Client) resourceURL(kind contracts.ResourceKind, arn string) string {
	return c.collectionURL(kind) + "?arn=" + url.QueryEscape(arn)
}

// collection maps a resource kind to its REST path ("dataset_import_job" → "dataset-import-jobs")
func collection(kind contracts.ResourceKind) string {
	return strings.ReplaceAll(string(kind), "_", "-") + "s"
}

// checkStatus maps service errors onto contract sentinels; closes the body on error
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e errorResponse
	msg := string(raw)
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		msg = e.Message
	}

	switch {
	case resp.StatusCode == http.StatusConflict || e.Code == "ResourceInUseException":
		return fmt.Errorf("%w: %s", contracts.ErrResourceInProgress, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", contracts.ErrResourceNotFound, msg)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}
