package commands

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/demandcast/internal/champion"
	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/errorlog"
	"github.com/wonny/demandcast/internal/forecastsvc"
	"github.com/wonny/demandcast/internal/metrics"
	"github.com/wonny/demandcast/internal/notify"
	"github.com/wonny/demandcast/internal/objectstore"
	"github.com/wonny/demandcast/internal/orchestrator"
	"github.com/wonny/demandcast/internal/pipelineconfig"
	"github.com/wonny/demandcast/internal/scheduler/jobs"
	"github.com/wonny/demandcast/internal/warehouse"
	"github.com/wonny/demandcast/pkg/config"
	"github.com/wonny/demandcast/pkg/database"
	"github.com/wonny/demandcast/pkg/httputil"
	"github.com/wonny/demandcast/pkg/logger"
	"github.com/wonny/demandcast/pkg/redis"
)

// app holds the wired pipeline for one CLI invocation
type app struct {
	cfg      *config.Config
	pipeline *pipelineconfig.Config
	hash     string
	log      *logger.Logger
	metrics  *metrics.Metrics
	store    contracts.ObjectStore
	stages   *jobs.Stages
	closers  []func()
}

// loadConfig reads env config, applying global flags
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if pipelineFile != "" {
		cfg.PipelineFile = pipelineFile
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// loadPipeline reads and validates the pipeline YAML, returning its hash
func loadPipeline(cfg *config.Config) (*pipelineconfig.Config, string, error) {
	pc, _, err := pipelineconfig.Load(cfg.PipelineFile)
	if err != nil {
		return nil, "", err
	}
	hash, err := pipelineconfig.Hash(pc)
	if err != nil {
		return nil, "", fmt.Errorf("hash pipeline config: %w", err)
	}
	return pc, hash, nil
}

// newApp wires every pipeline component
// ⭐ SSOT: 의존성 조립은 여기서만
func newApp(ctx context.Context, runID string, parallel int) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	pc, hash, err := loadPipeline(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, pipeline: pc, hash: hash, log: log, metrics: metrics.New()}
	log.WithFields(map[string]interface{}{
		"pipeline_id": pc.Meta.PipelineID,
		"config_hash": hash,
		"mode":        cfg.ForecastService.Mode,
	}).Info("Pipeline config loaded")

	// 1. Object store
	store, err := objectstore.NewLocal(cfg.ObjectStore.Root, cfg.ObjectStore.Bucket, log.Component("objectstore"))
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	a.store = store

	// 2. Redis (rate limit + run lock); disabled config yields a no-op client
	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	lock := redis.NewRunLock(rdb, "demandcast")

	// 3. Forecasting service + warehouse
	var (
		svc   contracts.ForecastService
		wh    contracts.Warehouse
		sink  contracts.ErrorLog
		clock forecastsvc.Clock = forecastsvc.RealClock{}
	)
	if cfg.Simulated() {
		// 시뮬레이션: 인메모리 서비스 + 가상 시계, warehouse도 메모리
		svc = forecastsvc.NewSimulator(store, 3, log.Component("forecastsvc.simulator"))
		clock = forecastsvc.NewVirtualClock(time.Now())
		if runID == "" {
			runID = time.Now().Format("20060102")
		}
		mem := warehouse.NewMemory(pc.FeedQuantile, runID)
		wh, sink = mem, mem
	} else {
		var limiter httputil.Limiter = rate.NewLimiter(rate.Limit(cfg.ForecastService.RateLimit), cfg.ForecastService.RateLimit)
		if rdb.Enabled() {
			limiter = redis.NewRateLimiter(rdb, "demandcast").Bind(redis.ForecastAPIRateLimit(cfg.ForecastService.RateLimit))
		}
		httpClient := httputil.New(log, cfg.ForecastService.Timeout).WithLimiter(limiter)
		if cfg.ForecastService.Token != "" {
			httpClient = httpClient.WithHeader("Authorization", "Bearer "+cfg.ForecastService.Token)
		}
		svc = forecastsvc.NewClient(cfg.ForecastService.BaseURL, httpClient, log)

		db, err := database.New(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to warehouse: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := warehouse.NewRepository(db.Pool, pc.Tables, pc.FeedQuantile, log.Component("warehouse"))
		wh, sink = repo, repo
	}

	// 4. Notification channel
	var notifier contracts.Notifier = notify.Nop{}
	if cfg.Notify.Enabled && cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, httputil.New(log, 10*time.Second), log.Component("notify"))
	}

	// 5. Orchestrator + champion
	recorder := errorlog.NewRecorder(sink, pc.Meta.Job, a.metrics, log.Component("errorlog")).WithClock(clock.Now)
	poller := forecastsvc.NewPoller(svc, clock, pc.Polling.Interval, pc.Polling.MaxWait, log.Component("forecastsvc.poller")).
		WithObserver(a.metrics)
	runner := orchestrator.NewRunner(pc, orchestrator.Deps{
		Service:   svc,
		Poller:    poller,
		Store:     store,
		Warehouse: wh,
		Recorder:  recorder,
		Metrics:   a.metrics,
	}, log.Zerolog())
	supervisor := orchestrator.NewSupervisor(pc, runner, log.Zerolog()).WithLimit(parallel)
	championSvc := champion.NewService(pc, wh, store, recorder, a.metrics, log.Zerolog())

	pushURL := ""
	if cfg.Metrics.Enabled {
		pushURL = cfg.Metrics.PushURL
	}
	a.stages = jobs.NewStages(pc, jobs.StageDeps{
		Supervisor: supervisor,
		Champion:   championSvc,
		Warehouse:  wh,
		Notifier:   notifier,
		Metrics:    a.metrics,
		Lock:       lock,
		PushURL:    pushURL,
	}, log)

	return a, nil
}

// Close releases connections in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
