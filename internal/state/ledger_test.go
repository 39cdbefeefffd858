package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlab/stockpipe/internal/ident"
	"github.com/marketlab/stockpipe/internal/model"
)

func TestLedgerAppendAndReadAll(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "models", "models_history.jsonl")
	led := NewLedger(path)

	first := model.ModelDescriptor{
		ModelID:         "model_tsla_20250101_000000_with_outliers",
		StockSymbol:     "TSLA",
		FetchID:         "fetch_20250101_000000",
		Timestamp:       "20250101_000000",
		OutlierHandling: ident.WithOutliers,
		Features:        []string{"prev_close", "volume", "ma5"},
		Target:          "next_close",
		ModelType:       "ridge",
		Metrics:         model.PerformanceMetrics{RMSE: 1.2, MAE: 0.9, R2: 0.91},
	}
	second := first
	second.ModelID = "model_tsla_20250101_000000_without_outliers"
	second.OutlierHandling = ident.WithoutOutliers

	require.NoError(t, led.Append(first))
	require.NoError(t, led.Append(second))

	got, err := ReadAll[model.ModelDescriptor](path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ModelID, got[0].ModelID)
	assert.Equal(t, second.ModelID, got[1].ModelID)
	assert.InDelta(t, 0.91, got[0].Metrics.R2, 1e-9)

	// One object per line, insertion order, trailing newline.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "\n"))
	assert.Len(t, strings.Split(strings.TrimRight(string(raw), "\n"), "\n"), 2)
}

func TestReadAllMissingFile(t *testing.T) {
	t.Parallel()

	got, err := ReadAll[model.ModelDescriptor](filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadAllBadLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"model_id\":\"x\"}\nnot json\n"), 0o644))

	_, err := ReadAll[model.ModelDescriptor](path)
	require.Error(t, err)
}
