package forecastsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/pkg/httputil"
	"github.com/wonny/demandcast/pkg/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	hc := httputil.New(logger.Nop(), time.Second).DisableRetry()
	return NewClient(server.URL+"/", hc, logger.Nop())
}

func TestClient_CreatePredictor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predictors", r.URL.Path)

		var spec contracts.PredictorSpec
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&spec))
		assert.Equal(t, "Deep_AR_Plus", spec.Algorithm)
		assert.True(t, spec.PerformHPO)

		_, _ = w.Write([]byte(`{"arn":"arn:predictor/1"}`))
	})

	arn, err := client.CreatePredictor(context.Background(), contracts.PredictorSpec{
		Name: "AUTO_1_deep_ar_plusr1", Algorithm: "Deep_AR_Plus", Horizon: 3, PerformHPO: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:predictor/1", arn)
}

func TestClient_CreateConflictMapsToInProgress(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"ResourceInUseException","message":"dataset import in progress"}`))
	})

	_, err := client.CreateForecast(context.Background(), contracts.ForecastSpec{Name: "f"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrResourceInProgress))
	assert.Contains(t, err.Error(), "dataset import in progress")
}

func TestClient_EmptyARN(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := client.CreateDatasetGroup(context.Background(), contracts.DatasetGroupSpec{Name: "g"})
	assert.Error(t, err)
}

func TestClient_DescribeAndDelete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dataset-import-jobs", r.URL.Path)
		assert.Equal(t, "arn:imp/1", r.URL.Query().Get("arn"))
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"status":"CREATE_IN_PROGRESS"}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	st, err := client.Describe(ctx, contracts.KindDatasetImportJob, "arn:imp/1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCreateInProgress, st.Status)
	assert.Equal(t, "arn:imp/1", st.ARN)

	err = client.Delete(ctx, contracts.KindDatasetImportJob, "arn:imp/1")
	assert.True(t, errors.Is(err, contracts.ErrResourceNotFound))
}

func TestClient_UpdateDatasetGroup(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dataset-groups/update", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "arn:g", body["DatasetGroupArn"])
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, client.UpdateDatasetGroup(context.Background(), "arn:g", []string{"arn:d"}))
}

func TestCollection(t *testing.T) {
	assert.Equal(t, "forecast-export-jobs", collection(contracts.KindForecastExportJob))
	assert.Equal(t, "dataset-groups", collection(contracts.KindDatasetGroup))
}
