package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/internal/api/handlers"
	"github.com/wonny/demandcast/internal/metrics"
	"github.com/wonny/demandcast/internal/scheduler"
	"github.com/wonny/demandcast/pkg/logger"
)

type stubJob struct{ name string }

func (j stubJob) Name() string                  { return j.name }
func (j stubJob) Schedule() string              { return "0 0 2 1 * *" }
func (j stubJob) Run(ctx context.Context) error { return nil }

func newTestRouter(t *testing.T) (http.Handler, *scheduler.Scheduler) {
	t.Helper()
	s := scheduler.New(time.UTC, zerolog.Nop())
	require.NoError(t, s.AddJob(stubJob{"forecast_pipeline"}))
	require.NoError(t, s.AddJob(stubJob{"champion_alteration"}))

	m := metrics.New()
	m.RunCompleted(time.Unix(1700000000, 0))

	log := logger.Nop()
	return NewRouter(handlers.NewJobsHandler(s, log), m.Handler(), log), s
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_Health(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"demandcast-scheduler"}`, rec.Body.String())
}

func TestRouter_Jobs(t *testing.T) {
	h, s := newTestRouter(t)
	_, err := s.RunNow(context.Background(), "forecast_pipeline")
	require.NoError(t, err)

	rec := serve(h, http.MethodGet, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs  []scheduler.JobStats `json:"jobs"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "champion_alteration", body.Jobs[0].JobName)
	assert.Equal(t, "forecast_pipeline", body.Jobs[1].JobName)
	assert.Equal(t, 1, body.Jobs[1].SuccessCount)
}

func TestRouter_History(t *testing.T) {
	h, s := newTestRouter(t)
	_, err := s.RunNow(context.Background(), "champion_alteration")
	require.NoError(t, err)

	rec := serve(h, http.MethodGet, "/api/jobs/champion_alteration/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []scheduler.JobResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.True(t, body.Results[0].Success)

	rec = serve(h, http.MethodGet, "/api/jobs/missing/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Run(t *testing.T) {
	h, s := newTestRouter(t)

	rec := serve(h, http.MethodPost, "/api/jobs/forecast_pipeline/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		history, _ := s.History("forecast_pipeline")
		return len(history) == 1
	}, time.Second, 5*time.Millisecond)

	rec = serve(h, http.MethodPost, "/api/jobs/missing/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodGet, "/api/jobs/forecast_pipeline/run")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := serve(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "demandcast_")
}

func TestRouter_RecoversPanics(t *testing.T) {
	log := logger.Nop()
	r := NewRouter(handlers.NewJobsHandler(panicRegistry{}, log), nil, log)

	rec := serve(r, http.MethodGet, "/api/jobs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

type panicRegistry struct{}

func (panicRegistry) Stats() map[string]scheduler.JobStats { panic("boom") }
func (panicRegistry) History(string) ([]scheduler.JobResult, error) {
	return nil, nil
}
func (panicRegistry) Trigger(string) error { return nil }

func TestServer_RunShutsDownOnCancel(t *testing.T) {
	h, _ := newTestRouter(t)
	srv := New("0", h, logger.Nop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
