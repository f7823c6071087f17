package series

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/window"
)

// ErrEmptyExport export 파일이 비어 있음 (라운드 skip 대상)
var ErrEmptyExport = errors.New("empty export file")

const dateLayout = "2006-01-02"

// ReadTarget parses a target file with header timestamp,target_value,item_id
func ReadTarget(data []byte) (Target, error) {
	rows, cols, err := readTable(data, "timestamp", "target_value", "item_id")
	if err != nil {
		return nil, fmt.Errorf("read target: %w", err)
	}

	out := make(Target, 0, len(rows))
	for i, row := range rows {
		ts, err := parseMonth(row[cols["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("read target line %d: %w", i+2, err)
		}
		v, err := parseFloat(row[cols["target_value"]])
		if err != nil {
			return nil, fmt.Errorf("read target line %d: %w", i+2, err)
		}
		out = append(out, contracts.TargetPoint{
			Timestamp: ts,
			ItemID:    strings.TrimSpace(row[cols["item_id"]]),
			Value:     v,
		})
	}
	return out, nil
}

// WriteTarget renders the target series in import column order
func WriteTarget(t Target) ([]byte, error) {
	records := make([][]string, 0, len(t)+1)
	records = append(records, []string{"timestamp", "target_value", "item_id"})
	for _, p := range t {
		records = append(records, []string{
			p.Timestamp.Format(dateLayout),
			strconv.FormatFloat(p.Value, 'f', -1, 64),
			p.ItemID,
		})
	}
	return writeTable(records)
}

// ReadRelated parses a related file with header timestamp,item_id,<valueColumn>
func ReadRelated(data []byte, valueColumn string) (Related, error) {
	rows, cols, err := readTable(data, "timestamp", "item_id", valueColumn)
	if err != nil {
		return nil, fmt.Errorf("read related: %w", err)
	}

	out := make(Related, 0, len(rows))
	for i, row := range rows {
		ts, err := parseMonth(row[cols["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("read related line %d: %w", i+2, err)
		}
		v, err := parseFloat(row[cols[valueColumn]])
		if err != nil {
			return nil, fmt.Errorf("read related line %d: %w", i+2, err)
		}
		out = append(out, contracts.RelatedPoint{
			Timestamp:    ts,
			ItemID:       strings.TrimSpace(row[cols["item_id"]]),
			FutureOrders: v,
		})
	}
	return out, nil
}

// WriteRelated renders the related series in import column order
func WriteRelated(r Related, valueColumn string) ([]byte, error) {
	records := make([][]string, 0, len(r)+1)
	records = append(records, []string{"timestamp", "item_id", valueColumn})
	for _, p := range r {
		records = append(records, []string{
			p.Timestamp.Format(dateLayout),
			p.ItemID,
			strconv.FormatFloat(p.FutureOrders, 'f', -1, 64),
		})
	}
	return writeTable(records)
}

// ReadItems parses an item metadata file using the schema column names
func ReadItems(data []byte, schema []contracts.SchemaAttribute) ([]contracts.ItemMeta, error) {
	names := contracts.Columns(schema)
	if len(names) != 4 {
		return nil, fmt.Errorf("read items: schema needs 4 attributes, got %d", len(names))
	}
	rows, cols, err := readTable(data, names...)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}

	out := make([]contracts.ItemMeta, 0, len(rows))
	for _, row := range rows {
		out = append(out, contracts.ItemMeta{
			ItemID:        strings.TrimSpace(row[cols[names[0]]]),
			DemandProfile: row[cols[names[1]]],
			ProductLine:   row[cols[names[2]]],
			BusinessTeam:  row[cols[names[3]]],
		})
	}
	return out, nil
}

// ReadExport parses a forecast export file (item_id,date,p30,...)
func ReadExport(data []byte, quantiles []contracts.Quantile) ([]contracts.ExportPoint, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyExport
	}

	want := []string{"item_id", "date"}
	for _, q := range quantiles {
		want = append(want, q.Column())
	}
	rows, cols, err := readTable(data, want...)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	out := make([]contracts.ExportPoint, 0, len(rows))
	for i, row := range rows {
		ts, err := parseMonth(row[cols["date"]])
		if err != nil {
			return nil, fmt.Errorf("read export line %d: %w", i+2, err)
		}
		values := make(map[contracts.Quantile]float64, len(quantiles))
		for _, q := range quantiles {
			v, err := parseFloat(row[cols[q.Column()]])
			if err != nil {
				return nil, fmt.Errorf("read export line %d: %w", i+2, err)
			}
			values[q] = v
		}
		out = append(out, contracts.ExportPoint{
			ItemID:    strings.TrimSpace(row[cols["item_id"]]),
			Timestamp: ts,
			Values:    values,
		})
	}
	return out, nil
}

// WriteExport renders export points (used by the simulator and output copies)
func WriteExport(points []contracts.ExportPoint, quantiles []contracts.Quantile) ([]byte, error) {
	header := []string{"item_id", "date"}
	for _, q := range quantiles {
		header = append(header, q.Column())
	}
	records := [][]string{header}
	for _, p := range points {
		rec := []string{p.ItemID, p.Timestamp.Format(time.RFC3339)}
		for _, q := range quantiles {
			rec = append(rec, strconv.FormatFloat(p.Values[q], 'f', -1, 64))
		}
		records = append(records, rec)
	}
	return writeTable(records)
}

// WriteForecastRecords renders the forecast output copy in warehouse column order
func WriteForecastRecords(records []contracts.ForecastRecord) ([]byte, error) {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{
		"RUN_TIME_STAMP", "ITEM_ID", "MONTH_YEAR", "FORECAST_METHOD", "FORECAST_VALUE", "TEST_MAPE", "TEST_MAD",
	})
	for _, r := range records {
		rows = append(rows, []string{
			r.RunID,
			r.ItemID,
			contracts.MonthLabel(r.Month),
			r.Method(),
			strconv.FormatInt(r.Value, 10),
			strconv.FormatFloat(r.TestMAPE, 'f', 4, 64),
			strconv.FormatFloat(r.TestMAD, 'f', 4, 64),
		})
	}
	return writeTable(rows)
}

// readTable reads a CSV with header and resolves the required columns
func readTable(data []byte, required ...string) ([][]string, map[string]int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("missing header")
	}
	if err != nil {
		return nil, nil, err
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return rows, cols, nil
}

func writeTable(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseMonth reads the leading YYYY-MM-DD and truncates to the month
func parseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(dateLayout) {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	t, err := time.Parse(dateLayout, s[:len(dateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return window.MonthStart(t), nil
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func lower(s string) string {
	return strings.ToLower(s)
}
