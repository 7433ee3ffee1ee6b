package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/collider.report/internal/analysis/histo"
	"github.com/banshee-data/collider.report/internal/db"
)

// findMigrationsDir walks up from the working directory until it finds the
// migrations directory, so tests work from any package depth.
func findMigrationsDir(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		candidate := filepath.Join(dir, "internal", "db", "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("migrations directory not found")
		}
		dir = parent
	}
}

func testDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.MigrateUp(findMigrationsDir(t)))
	return database
}

func TestRunStoreLifecycle(t *testing.T) {
	database := testDB(t)
	store := NewRunStore(database.DB)

	run := &AnalysisRun{Label: "dev", ConfigJSON: []byte(`{"workers":4}`)}
	require.NoError(t, store.Insert(run))
	require.NotEmpty(t, run.RunID)
	require.Equal(t, RunStatusRunning, run.Status)

	got, err := store.Get(run.RunID)
	require.NoError(t, err)
	require.Equal(t, "dev", got.Label)
	require.Equal(t, RunStatusRunning, got.Status)
	require.JSONEq(t, `{"workers":4}`, string(got.ConfigJSON))
	require.Zero(t, got.FinishedAt)

	run.Units = 2
	run.Chunks = 8
	run.ProcessedChunks = 7
	run.SkippedChunks = 1
	run.Events = 350
	run.Status = RunStatusComplete
	require.NoError(t, store.Finish(run))

	got, err = store.Get(run.RunID)
	require.NoError(t, err)
	require.Equal(t, RunStatusComplete, got.Status)
	require.Equal(t, 7, got.ProcessedChunks)
	require.Equal(t, 1, got.SkippedChunks)
	require.Equal(t, int64(350), got.Events)
	require.NotZero(t, got.FinishedAt)
}

func TestRunStoreGetMissing(t *testing.T) {
	store := NewRunStore(testDB(t).DB)
	_, err := store.Get("no-such-run")
	require.Error(t, err)
}

func TestRunStoreFinishMissing(t *testing.T) {
	store := NewRunStore(testDB(t).DB)
	err := store.Finish(&AnalysisRun{RunID: "no-such-run"})
	require.Error(t, err)
}

func TestRunStoreListNewestFirst(t *testing.T) {
	store := NewRunStore(testDB(t).DB)

	first := &AnalysisRun{Label: "first", StartedAt: 100}
	second := &AnalysisRun{Label: "second", StartedAt: 200}
	require.NoError(t, store.Insert(first))
	require.NoError(t, store.Insert(second))

	runs, err := store.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "second", runs[0].Label)
	require.Equal(t, "first", runs[1].Label)
}

func TestHistogramStoreRoundTrip(t *testing.T) {
	database := testDB(t)
	runs := NewRunStore(database.DB)
	hists := NewHistogramStore(database.DB)

	run := &AnalysisRun{Label: "roundtrip"}
	require.NoError(t, runs.Insert(run))

	acc := histo.New(4, 0, 100)
	keyA := histo.Key{Region: "4j1b", Process: "ttbar", Variation: "nominal"}
	keyB := histo.Key{Region: "4j2b", Process: "ttbar", Variation: "pt_scale_up"}
	require.NoError(t, acc.Fill(keyA, []float64{10, 30, 30, 90}, []float64{1, 2, 3, 4}))
	require.NoError(t, acc.Fill(keyB, []float64{55}, []float64{0.5}))

	require.NoError(t, hists.SaveAccumulator(run.RunID, acc))

	stored, err := hists.ListByRun(run.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	got, err := hists.Get(run.RunID, "4j1b", "ttbar", "nominal")
	require.NoError(t, err)
	require.Equal(t, 4, got.Bins)
	require.Equal(t, []float64{1, 5, 0, 4}, got.Contents)
	require.Equal(t, []float64{1, 13, 0, 16}, got.SumW2)
	require.Equal(t, int64(4), got.Entries)
	require.Equal(t, []float64{0, 25, 50, 75, 100}, got.BinEdges())
}

func TestHistogramStoreDuplicateKeyRejected(t *testing.T) {
	database := testDB(t)
	runs := NewRunStore(database.DB)
	hists := NewHistogramStore(database.DB)

	run := &AnalysisRun{}
	require.NoError(t, runs.Insert(run))

	rec := Histogram{
		RunID: run.RunID, Region: "4j1b", Process: "ttbar", Variation: "nominal",
		Bins: 2, Low: 0, High: 10, Contents: []float64{1, 2}, SumW2: []float64{1, 4},
	}
	first := rec
	require.NoError(t, hists.Insert(&first))

	dup := rec
	require.Error(t, hists.Insert(&dup))
}

func TestMigrateDownAndUp(t *testing.T) {
	database := testDB(t)
	dir := findMigrationsDir(t)

	version, dirty, err := database.MigrateVersion(dir)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)

	require.NoError(t, database.MigrateDown(dir))
	require.NoError(t, database.MigrateUp(dir))
}
