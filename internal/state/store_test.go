package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlab/stockpipe/internal/model"
)

func testFetchDescriptor(fetchID, symbol string) *model.FetchDescriptor {
	return &model.FetchDescriptor{
		FetchID:     fetchID,
		StockSymbol: symbol,
		FetchTime:   "2025-01-01T00:00:00Z",
		APIFunction: "TIME_SERIES_DAILY",
		DaysBack:    365,
		OutputSize:  "full",
		RowCount:    250,
	}
}

func TestFileStoreLoadNotFound(t *testing.T) {
	t.Parallel()

	st := NewFileStore(filepath.Join(t.TempDir(), "config", "config.json"))
	_, err := st.Load()
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load()
	require.ErrorIs(t, err, ErrConfigCorrupt)
}

func TestFileStoreUpdateBootstraps(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config", "config.json")
	st := NewFileStore(path)

	require.NoError(t, st.Update(Patch{
		Fields: map[string]any{
			"raw_data_dir":       "data/raw",
			"processed_data_dir": "data/processed",
		},
		CurrentFetch:  &model.FetchDescriptor{},
		CurrentModels: map[string]string{},
	}))

	doc, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "data/raw", doc.RawDataDir)
	assert.Equal(t, "data/processed", doc.ProcessedDataDir)
	require.NotNil(t, doc.CurrentFetch)
	assert.True(t, doc.CurrentFetch.IsZero())
	require.NotNil(t, doc.CurrentModels)
	assert.Empty(t, doc.CurrentModels)
}

func TestUpdateCurrentFetchReplacesNotMerges(t *testing.T) {
	t.Parallel()

	st := NewFileStore(filepath.Join(t.TempDir(), "config.json"))

	first := testFetchDescriptor("fetch_20250101_000000", "TSLA")
	first.RawDataFile = "data/raw/raw_tsla_fetch_20250101_000000.csv"
	require.NoError(t, st.Update(Patch{CurrentFetch: first}))

	second := testFetchDescriptor("fetch_20250202_000000", "TSLA")
	require.NoError(t, st.Update(Patch{CurrentFetch: second}))

	doc, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "fetch_20250202_000000", doc.CurrentFetch.FetchID)
	// Replace, not merge: the first descriptor's raw_data_file must be gone.
	assert.Empty(t, doc.CurrentFetch.RawDataFile)
}

func TestUpdateCurrentModelsReplaces(t *testing.T) {
	t.Parallel()

	st := NewFileStore(filepath.Join(t.TempDir(), "config.json"))

	require.NoError(t, st.Update(Patch{CurrentModels: map[string]string{
		"with_outliers":    "model_tsla_20250101_000000_with_outliers",
		"without_outliers": "model_tsla_20250101_000000_without_outliers",
	}}))
	require.NoError(t, st.Update(Patch{CurrentModels: map[string]string{
		"with_outliers": "model_tsla_20250202_000000_with_outliers",
	}}))

	doc, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"with_outliers": "model_tsla_20250202_000000_with_outliers",
	}, doc.CurrentModels)
}

func TestUpdateShallowMergeKeepsOtherKeys(t *testing.T) {
	t.Parallel()

	st := NewFileStore(filepath.Join(t.TempDir(), "config.json"))

	require.NoError(t, st.Update(Patch{Fields: map[string]any{
		"raw_data_dir": "data/raw",
		"target":       "next_close",
	}}))
	require.NoError(t, st.Update(Patch{Fields: map[string]any{
		"raw_data_dir": "data/rawv2",
	}}))

	doc, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "data/rawv2", doc.RawDataDir)
	assert.Equal(t, "next_close", doc.Target)
}

func TestUpdatePreservesUnknownKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"gaps_dir":"data/intermediate","target":"next_close"}`), 0o644))

	st := NewFileStore(path)
	require.NoError(t, st.Update(Patch{Fields: map[string]any{"target": "close"}}))

	doc, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "close", doc.Target)
	assert.JSONEq(t, `"data/intermediate"`, string(doc.Extra["gaps_dir"]))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "gaps_dir")
}

func TestUpdateRejectsPointerKeysInFields(t *testing.T) {
	t.Parallel()

	st := NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	err := st.Update(Patch{Fields: map[string]any{"current_fetch": map[string]any{}}})
	require.Error(t, err)
}

func TestUpdateAppendsFetchHistoryOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := NewFileStore(filepath.Join(dir, "config.json"))
	history := filepath.Join(dir, "fetch_history.jsonl")

	desc := testFetchDescriptor("fetch_20250101_000000", "TSLA")
	require.NoError(t, st.Update(Patch{CurrentFetch: desc, HistoryPath: history}))

	// A models-only update must not touch the ledger.
	require.NoError(t, st.Update(Patch{
		CurrentModels: map[string]string{"with_outliers": "model_tsla_20250101_000000_with_outliers"},
		HistoryPath:   history,
	}))

	b, err := os.ReadFile(history)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	require.Len(t, lines, 1)

	var got model.FetchDescriptor
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, *desc, got)
}

func TestUpdateEmptyCurrentFetchSkipsHistory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := NewFileStore(filepath.Join(dir, "config.json"))
	history := filepath.Join(dir, "fetch_history.jsonl")

	require.NoError(t, st.Update(Patch{CurrentFetch: &model.FetchDescriptor{}, HistoryPath: history}))

	_, err := os.Stat(history)
	assert.True(t, os.IsNotExist(err))
}

func TestUpdateWithoutHistoryPathSkipsLedger(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := NewFileStore(filepath.Join(dir, "config.json"))

	require.NoError(t, st.Update(Patch{CurrentFetch: testFetchDescriptor("fetch_20250101_000000", "TSLA")}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.json", entries[0].Name())
}

func TestLoadRejectsStructurallyInvalidCurrentFetch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	// fetch_id missing its prefix and symbol not uppercase.
	require.NoError(t, os.WriteFile(path, []byte(`{"current_fetch":{"fetch_id":"20250101","stock_symbol":"tsla","fetch_time":"t"}}`), 0o644))

	_, err := NewFileStore(path).Load()
	require.ErrorIs(t, err, ErrConfigCorrupt)
}

func TestMemStoreRoundTrip(t *testing.T) {
	t.Parallel()

	st := NewMemStore(nil)
	_, err := st.Load()
	require.ErrorIs(t, err, ErrConfigNotFound)

	desc := testFetchDescriptor("fetch_20250101_000000", "TSLA")
	require.NoError(t, st.Update(Patch{CurrentFetch: desc, HistoryPath: "mem"}))

	doc, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, "fetch_20250101_000000", doc.CurrentFetch.FetchID)
	require.Len(t, st.History, 1)
	assert.Equal(t, "TSLA", st.History[0].StockSymbol)
}
