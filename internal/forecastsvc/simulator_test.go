package forecastsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/internal/contracts"
	"github.com/wonny/demandcast/internal/objectstore"
	"github.com/wonny/demandcast/internal/series"
)

func seedTarget(t *testing.T, store contracts.ObjectStore, key string) {
	var b strings.Builder
	b.WriteString("timestamp,target_value,item_id\n")
	for m := 1; m <= 6; m++ {
		fmt.Fprintf(&b, "2023-%02d-01,%d,SKU-A\n", m, m*10)
	}
	require.NoError(t, store.Put(context.Background(), key, []byte(b.String())))
}

func TestSimulator_FullFlow(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("bucket")
	seedTarget(t, store, "processed/target.csv")

	sim := NewSimulator(store, 2, zerolog.Nop())
	poller := NewPoller(sim, NewVirtualClock(time.Now()), time.Second, time.Hour, zerolog.Nop())

	group, err := sim.CreateDatasetGroup(ctx, contracts.DatasetGroupSpec{Name: "g"})
	require.NoError(t, err)
	ds, err := sim.CreateDataset(ctx, contracts.DatasetSpec{Name: "d", Type: contracts.DatasetTarget})
	require.NoError(t, err)
	require.NoError(t, sim.UpdateDatasetGroup(ctx, group, []string{ds}))

	imp, err := sim.CreateDatasetImportJob(ctx, contracts.ImportJobSpec{
		Name: "imp", DatasetARN: ds, DataURI: store.URI("processed/target.csv"),
	})
	require.NoError(t, err)
	st, err := poller.AwaitTerminal(ctx, contracts.KindDatasetImportJob, imp)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusActive, st)

	pred, err := sim.CreatePredictor(ctx, contracts.PredictorSpec{Name: "p", Horizon: 3, DatasetGroupARN: group})
	require.NoError(t, err)
	fc, err := sim.CreateForecast(ctx, contracts.ForecastSpec{Name: "f", PredictorARN: pred, Types: []string{"0.3", "0.5"}})
	require.NoError(t, err)
	_, err = sim.CreateForecastExportJob(ctx, contracts.ExportJobSpec{
		Name: "exp", ForecastARN: fc, DestinationURI: store.URI("output/x"),
	})
	require.NoError(t, err)

	data, err := store.Get(ctx, "output/x/exp_part0.csv")
	require.NoError(t, err)
	pts, err := series.ReadExport(data, []contracts.Quantile{0.3, 0.5})
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, "sku-a", pts[0].ItemID)
	assert.Equal(t, time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), pts[0].Timestamp)
	assert.Equal(t, 50.0, pts[0].Values[0.5]) // mean(40,50,60)
	assert.Equal(t, 30.0, pts[0].Values[0.3])

	for _, arn := range []string{imp, fc, pred, ds, group} {
		kind := contracts.KindDatasetImportJob
		switch arn {
		case fc:
			kind = contracts.KindForecast
		case pred:
			kind = contracts.KindPredictor
		case ds:
			kind = contracts.KindDataset
		case group:
			kind = contracts.KindDatasetGroup
		}
		require.NoError(t, sim.Delete(ctx, kind, arn))
	}
	assert.Equal(t, 1, sim.Live()) // export job
}

func TestSimulator_Faults(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("bucket")
	sim := NewSimulator(store, 1, zerolog.Nop())

	sim.Inject(Fault{Kind: contracts.KindDatasetGroup, NameContains: "r3", Mode: FaultBusy})
	sim.Inject(Fault{Kind: contracts.KindDatasetGroup, NameContains: "r4", Mode: FaultFail})
	sim.Inject(Fault{Kind: contracts.KindDatasetGroup, NameContains: "r5", Mode: FaultStuck, StuckDescribes: 2})

	_, err := sim.CreateDatasetGroup(ctx, contracts.DatasetGroupSpec{Name: "gr3"})
	assert.True(t, errors.Is(err, contracts.ErrResourceInProgress))
	_, err = sim.CreateDatasetGroup(ctx, contracts.DatasetGroupSpec{Name: "gr3"})
	assert.NoError(t, err, "fault consumed")

	failed, err := sim.CreateDatasetGroup(ctx, contracts.DatasetGroupSpec{Name: "gr4"})
	require.NoError(t, err)
	st, err := sim.Describe(ctx, contracts.KindDatasetGroup, failed)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCreateFailed, st.Status)

	stuck, err := sim.CreateDatasetGroup(ctx, contracts.DatasetGroupSpec{Name: "gr5"})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		st, _ = sim.Describe(ctx, contracts.KindDatasetGroup, stuck)
		assert.Equal(t, contracts.StatusCreateInProgress, st.Status)
	}
	st, _ = sim.Describe(ctx, contracts.KindDatasetGroup, stuck)
	assert.Equal(t, contracts.StatusActive, st.Status)

	_, err = sim.Describe(ctx, contracts.KindDatasetGroup, "arn:missing")
	assert.True(t, errors.Is(err, contracts.ErrResourceNotFound))
}

func TestSimulator_ImportMissingFileFails(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory("bucket")
	sim := NewSimulator(store, 1, zerolog.Nop())

	ds, err := sim.CreateDataset(ctx, contracts.DatasetSpec{Name: "d", Type: contracts.DatasetTarget})
	require.NoError(t, err)
	imp, err := sim.CreateDatasetImportJob(ctx, contracts.ImportJobSpec{Name: "i", DatasetARN: ds, DataURI: store.URI("nope.csv")})
	require.NoError(t, err)

	st, err := sim.Describe(ctx, contracts.KindDatasetImportJob, imp)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCreateFailed, st.Status)
	assert.NotEmpty(t, st.Message)
}
