package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/internal/objectstore"
	"github.com/wonny/demandcast/internal/pipelineconfig"
	"github.com/wonny/demandcast/internal/window"
)

// execute runs the CLI with args and returns its output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	pipelineFile, verbose = "", false
	runIDFlag, algorithmFlag, parallelFlag = "", "", 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigCheck(t *testing.T) {
	t.Setenv("FORECAST_MODE", "simulate")

	out, err := execute(t, "config", "check", "--pipeline", filepath.Join("..", "..", "..", "config", "pipeline.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "Pipeline orders_baseline")
	assert.Contains(t, out, "3 months x 5 rounds (total 12)")
	assert.Contains(t, out, "Deep_AR_Plus")
	assert.Contains(t, out, "Pipeline config is valid")
}

func TestConfigCheck_RejectsUnknownField(t *testing.T) {
	t.Setenv("FORECAST_MODE", "simulate")
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("horizon:\n  forcast_horizon: 3\n"), 0o644))

	out, err := execute(t, "config", "check", "--pipeline", path)
	require.Error(t, err)
	assert.Contains(t, out, "❌")
}

func TestPipelineRun_Simulated(t *testing.T) {
	root := t.TempDir()
	t.Setenv("FORECAST_MODE", "simulate")
	t.Setenv("OBJECT_STORE_ROOT", root)
	t.Setenv("OBJECT_STORE_BUCKET", "demandcast")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("NOTIFY_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	yaml := "meta:\n  timezone: UTC\nalgorithms:\n  - id: ets\n  - id: npts\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	seedSource(t, root, "demandcast")

	out, err := execute(t, "pipeline", "run", "--pipeline", path, "--run-id", "20240101")
	require.NoError(t, err, out)

	assert.Contains(t, out, "Forecast run 20240101")
	assert.Contains(t, out, "Champion alteration 20240101")
	assert.Contains(t, out, "5/5")
	assert.Contains(t, out, "Pipeline completed for run 20240101")

	// export CSV copy is written per algorithm
	pc := pipelineconfig.Default()
	matches, err := filepath.Glob(filepath.Join(root, "demandcast", pc.Paths.Output, "*_ets", "output.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestForecastRun_UnknownAlgorithm(t *testing.T) {
	root := t.TempDir()
	t.Setenv("FORECAST_MODE", "simulate")
	t.Setenv("OBJECT_STORE_ROOT", root)
	t.Setenv("LOG_LEVEL", "error")

	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("meta:\n  timezone: UTC\n"), 0o644))

	out, err := execute(t, "forecast", "run", "--pipeline", path, "--algorithm", "unknown")
	require.Error(t, err)
	assert.Contains(t, out, "unknown algorithm")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"ets", "npts"}, splitList(" ets, ,npts "))
	assert.Empty(t, splitList(""))
}

func TestPrintTable(t *testing.T) {
	var b bytes.Buffer
	printTable(&b, []string{"A", "B"}, []int{3, 2}, [][]string{{"x", "yy"}})

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "A    B", lines[0])
	assert.Equal(t, strings.Repeat("─", 7), lines[1])
	assert.Equal(t, "x    yy", lines[2])
}

// seedSource writes 36 months of target and related data into the local store
func seedSource(t *testing.T, root, bucket string) {
	t.Helper()
	store, err := objectstore.NewLocal(root, bucket, zerolog.Nop())
	require.NoError(t, err)

	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	var target, related strings.Builder
	target.WriteString("timestamp,target_value,item_id\n")
	related.WriteString("timestamp,item_id,Future_Orders\n")
	for m := 0; m < 48; m++ {
		ts := window.AddMonths(start, m).Format("2006-01-02")
		if m < 36 {
			fmt.Fprintf(&target, "%s,%d,SKU1\n", ts, 120+m%6)
			fmt.Fprintf(&target, "%s,%d,SKU2\n", ts, 30+m%2)
		}
		fmt.Fprintf(&related, "%s,SKU1,100\n", ts)
		fmt.Fprintf(&related, "%s,SKU2,25\n", ts)
	}

	ctx := context.Background()
	p := pipelineconfig.Default().Paths
	require.NoError(t, store.Put(ctx, objectstore.Join(p.Source, p.TargetFile), []byte(target.String())))
	require.NoError(t, store.Put(ctx, objectstore.Join(p.Source, p.RelatedFile), []byte(related.String())))
}
