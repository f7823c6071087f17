package series

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/window"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

const targetCSV = `timestamp,target_value,item_id
2023-01-01,10,SKU-A
2023-02-01,12,SKU-A
2023-03-01,8,SKU-A
2023-01-01,100,SKU-B
2023-02-01,0,SKU-B
2023-03-01,50,SKU-B
`

func TestReadTarget(t *testing.T) {
	ts, err := ReadTarget([]byte(targetCSV))
	require.NoError(t, err)
	require.Len(t, ts, 6)

	assert.Equal(t, month(2023, 1), ts[0].Timestamp)
	assert.Equal(t, "SKU-A", ts[0].ItemID)
	assert.Equal(t, 10.0, ts[0].Value)

	r, err := ts.Range()
	require.NoError(t, err)
	assert.Equal(t, month(2023, 1), r.Min)
	assert.Equal(t, month(2023, 4), r.End)
}

func TestReadTarget_MissingColumn(t *testing.T) {
	_, err := ReadTarget([]byte("timestamp,item_id\n2023-01-01,A\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_value")
}

func TestTarget_RoundTrip(t *testing.T) {
	ts, err := ReadTarget([]byte(targetCSV))
	require.NoError(t, err)

	data, err := WriteTarget(ts)
	require.NoError(t, err)

	again, err := ReadTarget(data)
	require.NoError(t, err)
	assert.Equal(t, ts, again)
}

func TestTarget_Slice(t *testing.T) {
	ts, err := ReadTarget([]byte(targetCSV))
	require.NoError(t, err)

	got := ts.Slice(window.Window{Start: month(2023, 1), End: month(2023, 3)})
	require.Len(t, got, 4)
	for _, p := range got {
		assert.True(t, p.Timestamp.Before(month(2023, 3)))
	}
	// (timestamp, item_id) 정렬
	assert.Equal(t, "SKU-A", got[0].ItemID)
	assert.Equal(t, "SKU-B", got[1].ItemID)
	assert.Equal(t, month(2023, 2), got[2].Timestamp)
}

func TestTarget_Merge(t *testing.T) {
	ts, err := ReadTarget([]byte(targetCSV))
	require.NoError(t, err)

	merged := ts.Merge([]contracts.TargetPoint{
		{Timestamp: month(2023, 3), ItemID: "SKU-A", Value: 9},  // 덮어쓰기
		{Timestamp: month(2023, 4), ItemID: "SKU-A", Value: 11}, // 추가
	})
	require.Len(t, merged, 7)

	byItem := merged.ByItem()
	a := byItem["SKU-A"]
	require.Len(t, a, 4)
	assert.Equal(t, 9.0, a[2].Value)
	assert.Equal(t, month(2023, 4), a[3].Timestamp)

	// 원본은 변경되지 않음
	assert.Equal(t, 8.0, ts[2].Value)
}

func TestTarget_MeanVolumeByItem(t *testing.T) {
	ts := Target{
		{Timestamp: month(2023, 1), ItemID: "A", Value: 4},
		{Timestamp: month(2023, 2), ItemID: "A", Value: 5},
		{Timestamp: month(2023, 1), ItemID: "B", Value: 7},
		{Timestamp: month(2023, 2), ItemID: "B", Value: 8},
	}
	means := ts.MeanVolumeByItem()
	assert.Equal(t, 4.0, means["A"]) // 4.5 → 4 (half to even)
	assert.Equal(t, 8.0, means["B"]) // 7.5 → 8
}

func TestTarget_ItemIDsAndCaseIndex(t *testing.T) {
	ts := Target{
		{Timestamp: month(2023, 1), ItemID: "Zeta-1"},
		{Timestamp: month(2023, 1), ItemID: "Alpha-2"},
		{Timestamp: month(2023, 2), ItemID: "Zeta-1"},
	}
	assert.Equal(t, []string{"Alpha-2", "Zeta-1"}, ts.ItemIDs())
	assert.Equal(t, "Zeta-1", ts.CaseIndex()["zeta-1"])
}

func TestRelated_ReadAndSlice(t *testing.T) {
	data := []byte("timestamp,item_id,Future_Orders\n2023-02-01,A,5\n2023-01-01,A,3\n2023-05-01,A,\n")
	rs, err := ReadRelated(data, "Future_Orders")
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, 0.0, rs[2].FutureOrders)

	got := rs.Slice(window.Window{Start: month(2023, 1), End: month(2023, 4)})
	require.Len(t, got, 2)
	assert.Equal(t, month(2023, 1), got[0].Timestamp)

	out, err := WriteRelated(got, "Future_Orders")
	require.NoError(t, err)
	assert.Contains(t, string(out), "timestamp,item_id,Future_Orders")
}

func TestReadItems(t *testing.T) {
	schema := []contracts.SchemaAttribute{
		{Name: "item_id", Type: "string"},
		{Name: "demand_profile", Type: "string"},
		{Name: "product_line", Type: "string"},
		{Name: "business_team", Type: "string"},
	}
	data := []byte("item_id,demand_profile,product_line,business_team\nA,smooth,PL1,T1\n")
	items, err := ReadItems(data, schema)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "smooth", items[0].DemandProfile)
	assert.Equal(t, "T1", items[0].BusinessTeam)
}

func TestReadExport(t *testing.T) {
	qs := []contracts.Quantile{0.3, 0.4, 0.5}
	data := []byte("item_id,date,p30,p40,p50\nsku-a,2024-01-01T00:00:00Z,9.2,10.1,11.6\n")

	pts, err := ReadExport(data, qs)
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, "sku-a", pts[0].ItemID)
	assert.Equal(t, month(2024, 1), pts[0].Timestamp)
	assert.Equal(t, 11.6, pts[0].Values[contracts.Quantile(0.5)])
}

func TestReadExport_Empty(t *testing.T) {
	_, err := ReadExport([]byte("  \n"), []contracts.Quantile{0.5})
	assert.True(t, errors.Is(err, ErrEmptyExport))
}

func TestExport_RoundTrip(t *testing.T) {
	qs := []contracts.Quantile{0.3, 0.5}
	pts := []contracts.ExportPoint{{
		ItemID:    "a",
		Timestamp: month(2024, 2),
		Values:    map[contracts.Quantile]float64{0.3: 1.5, 0.5: 2.5},
	}}
	data, err := WriteExport(pts, qs)
	require.NoError(t, err)

	again, err := ReadExport(data, qs)
	require.NoError(t, err)
	assert.Equal(t, pts, again)
}

func TestWriteForecastRecords(t *testing.T) {
	data, err := WriteForecastRecords([]contracts.ForecastRecord{
		{RunID: "r1", ItemID: "SKU-A", Month: month(2024, time.February), Algorithm: "ets", Quantile: 0.5, Value: 12, TestMAPE: 12.5, TestMAD: 3},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"RUN_TIME_STAMP,ITEM_ID,MONTH_YEAR,FORECAST_METHOD,FORECAST_VALUE,TEST_MAPE,TEST_MAD\n"+
			"r1,SKU-A,Feb-2024,ETS_P50,12,12.5000,3.0000\n",
		string(data))
}
