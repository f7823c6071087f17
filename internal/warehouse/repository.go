// Package warehouse persists forecast output, champion tables and error records.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/pipelineconfig"
)

// DBPool pgxpool.Pool과 pgxmock 모두 만족
type DBPool interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository warehouse 저장소
// ⭐ SSOT: warehouse SQL은 여기서만
type Repository struct {
	pool   DBPool
	tables pipelineconfig.Tables
	feed   contracts.Quantile
	logger zerolog.Logger
}

// NewRepository creates a repository; feed selects the quantile copied to the champion input table
func NewRepository(pool DBPool, tables pipelineconfig.Tables, feed contracts.Quantile, logger zerolog.Logger) *Repository {
	return &Repository{
		pool:   pool,
		tables: tables,
		feed:   feed,
		logger: logger.With().Str("component", "warehouse.repository").Logger(),
	}
}

func ident(table string) string {
	return pgx.Identifier{table}.Sanitize()
}

// LatestRunID returns the newest run_time_stamp of the processed orders table
func (r *Repository) LatestRunID(ctx context.Context) (string, error) {
	query := fmt.Sprintf(`SELECT run_time_stamp FROM %s ORDER BY run_time_stamp DESC LIMIT 1`,
		ident(r.tables.ProcessedOrders))

	var runID string
	err := r.pool.QueryRow(ctx, query).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", contracts.ErrNoRunID
	}
	if err != nil {
		return "", fmt.Errorf("latest run id: %w", err)
	}
	return runID, nil
}

// SaveForecasts writes all quantiles to the baseline table and the feed quantile to the champion input table
func (r *Repository) SaveForecasts(ctx context.Context, records []contracts.ForecastRecord) error {
	if err := r.InsertForecasts(ctx, records); err != nil {
		return err
	}
	feed := make([]contracts.ForecastRecord, 0, len(records)/2)
	for _, rec := range records {
		if rec.Quantile == r.feed {
			feed = append(feed, rec)
		}
	}
	return r.InsertChampionInput(ctx, feed)
}

// InsertForecasts replaces the (run, algorithm) partitions of the baseline table
func (r *Repository) InsertForecasts(ctx context.Context, records []contracts.ForecastRecord) error {
	return r.replaceForecasts(ctx, r.tables.Baseline, records)
}

// InsertChampionInput replaces the (run, algorithm) partitions of the champion input table
func (r *Repository) InsertChampionInput(ctx context.Context, records []contracts.ForecastRecord) error {
	return r.replaceForecasts(ctx, r.tables.ChampionInput, records)
}

// replaceForecasts 알고리즘별 파티션만 교체 (다른 알고리즘 행과 충돌 없음)
func (r *Repository) replaceForecasts(ctx context.Context, table string, records []contracts.ForecastRecord) error {
	if len(records) == 0 {
		return nil
	}

	runID := records[0].RunID
	algorithms := distinctAlgorithms(records)
	patterns := methodPatterns(algorithms)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	del := fmt.Sprintf(`DELETE FROM %s WHERE run_time_stamp = $1 AND forecast_method LIKE ANY($2)`, ident(table))
	if _, err := tx.Exec(ctx, del, runID, patterns); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	ins := fmt.Sprintf(`
		INSERT INTO %s
			(run_time_stamp, item_id, month_year, forecast_method, forecast_value, test_mape, test_mad)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, ident(table))
	for _, rec := range records {
		if _, err := tx.Exec(ctx, ins,
			rec.RunID, rec.ItemID, rec.Month, rec.Method(),
			rec.Value, rec.TestMAPE, rec.TestMAD,
		); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}

	r.logger.Info().
		Str("table", table).
		Str("run_id", runID).
		Strs("algorithms", algorithms).
		Int("rows", len(records)).
		Msg("forecasts saved")
	return nil
}

// LoadChampionInput reads the feed-quantile forecasts of a run
func (r *Repository) LoadChampionInput(ctx context.Context, runID string) ([]contracts.ChampionRow, error) {
	query := fmt.Sprintf(`
		SELECT run_time_stamp, item_id, month_year, forecast_method, forecast_value, test_mape, test_mad
		FROM %s
		WHERE run_time_stamp = $1
		ORDER BY item_id, forecast_method, month_year`, ident(r.tables.ChampionInput))

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("load champion input: %w", err)
	}
	defer rows.Close()

	var out []contracts.ChampionRow
	for rows.Next() {
		var c contracts.ChampionRow
		if err := rows.Scan(&c.RunID, &c.ItemID, &c.Month, &c.Method, &c.Value, &c.TestMAPE, &c.TestMAD); err != nil {
			return nil, fmt.Errorf("scan champion input: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CallProcedure invokes a stored procedure by name
func (r *Repository) CallProcedure(ctx context.Context, name string) error {
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(`CALL %s()`, ident(name))); err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	r.logger.Info().Str("procedure", name).Msg("stored procedure called")
	return nil
}

// LoadRankedForecasts reads the procedure-ranked forecasts of a run
func (r *Repository) LoadRankedForecasts(ctx context.Context, runID string) ([]contracts.ChampionRow, error) {
	query := fmt.Sprintf(`
		SELECT run_time_stamp, item_id, month_year, forecast_method, forecast_value,
		       test_mape, test_mad, champ_rank, COALESCE(long_forecast, '')
		FROM %s
		WHERE run_time_stamp = $1
		ORDER BY item_id, champ_rank, month_year`, ident(r.tables.Ranked))

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("load ranked forecasts: %w", err)
	}
	defer rows.Close()

	var out []contracts.ChampionRow
	for rows.Next() {
		var c contracts.ChampionRow
		var tag string
		if err := rows.Scan(&c.RunID, &c.ItemID, &c.Month, &c.Method, &c.Value,
			&c.TestMAPE, &c.TestMAD, &c.ChampRank, &tag); err != nil {
			return nil, fmt.Errorf("scan ranked forecast: %w", err)
		}
		c.LongForecast = contracts.LongForecastTag(tag)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveChampionOutput replaces the champion output of a run
func (r *Repository) SaveChampionOutput(ctx context.Context, runID string, rows []contracts.ChampionRow) error {
	return r.ReplaceChampionOutput(ctx, runID, rows)
}

// ReplaceChampionOutput deletes the run's rows and inserts the new table in one transaction
func (r *Repository) ReplaceChampionOutput(ctx context.Context, runID string, rows []contracts.ChampionRow) error {
	table := r.tables.ChampionOutput

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE run_time_stamp = $1`, ident(table)), runID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	ins := fmt.Sprintf(`
		INSERT INTO %s
			(run_time_stamp, item_id, month_year, forecast_method, forecast_value,
			 test_mape, test_mad, update_time_stamp, champ_rank, long_forecast)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, ident(table))
	for _, c := range rows {
		if _, err := tx.Exec(ctx, ins,
			runID, c.ItemID, c.Month, c.Method, int64(c.Value),
			c.TestMAPE, c.TestMAD, c.UpdatedAt, c.ChampRank, nullableTag(c.LongForecast),
		); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}

	r.logger.Info().Str("table", table).Str("run_id", runID).Int("rows", len(rows)).Msg("champion output saved")
	return nil
}

// Record implements contracts.ErrorLog
func (r *Repository) Record(ctx context.Context, rec contracts.ErrorRecord) error {
	return r.InsertError(ctx, rec)
}

// InsertError writes one error log row
func (r *Repository) InsertError(ctx context.Context, rec contracts.ErrorRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
			(id, run_time_stamp, job, algorithm, round, kind, exception_raised_time, exception_key, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, ident(r.tables.ErrorLog))

	raised := rec.RaisedAt
	if raised.IsZero() {
		raised = time.Now()
	}
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.RunID, rec.Job, rec.Algorithm, rec.Round,
		string(rec.Kind), raised, rec.Key, rec.Truncated(),
	)
	if err != nil {
		return fmt.Errorf("insert error log: %w", err)
	}
	return nil
}

func distinctAlgorithms(records []contracts.ForecastRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.Algorithm] {
			seen[r.Algorithm] = true
			out = append(out, r.Algorithm)
		}
	}
	return out
}

// methodPatterns LIKE patterns matching every quantile method of an algorithm ("ETS\_P%")
func methodPatterns(algorithms []string) []string {
	out := make([]string, len(algorithms))
	for i, alg := range algorithms {
		out[i] = strings.ReplaceAll(strings.ToUpper(alg), "_", `\_`) + `\_P%`
	}
	return out
}

func nullableTag(t contracts.LongForecastTag) interface{} {
	if t == contracts.TagNone {
		return nil
	}
	return string(t)
}
