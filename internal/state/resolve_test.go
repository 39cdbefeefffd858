package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlab/stockpipe/internal/model"
)

func TestStockSymbolPrecedence(t *testing.T) {
	t.Setenv(SymbolEnvVar, "")

	doc := &Document{
		StockSymbol: "MSFT",
		CurrentFetch: &model.FetchDescriptor{
			FetchID:     "fetch_20250101_000000",
			StockSymbol: "TSLA",
			FetchTime:   "2025-01-01T00:00:00Z",
		},
	}

	tests := []struct {
		name     string
		explicit string
		doc      *Document
		want     string
	}{
		{"explicit wins over config", "AAPL", doc, "AAPL"},
		{"explicit is uppercased", "aapl", doc, "AAPL"},
		{"current_fetch wins over legacy key", "", doc, "TSLA"},
		{"legacy key when no current_fetch", "", &Document{StockSymbol: "MSFT"}, "MSFT"},
		{"default when nothing set", "", &Document{}, DefaultSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewResolver(tt.doc, ".").StockSymbol(tt.explicit, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStockSymbolFromEnv(t *testing.T) {
	t.Setenv(SymbolEnvVar, "nvda")

	got, err := NewResolver(&Document{}, ".").StockSymbol("", false)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", got)
}

func TestStockSymbolMandatory(t *testing.T) {
	t.Setenv(SymbolEnvVar, "")

	_, err := NewResolver(&Document{}, ".").StockSymbol("", true)
	require.ErrorIs(t, err, ErrUnresolvedIdentifier)
}

func TestFetchIDResolution(t *testing.T) {
	t.Parallel()

	doc := &Document{
		CurrentFetch: &model.FetchDescriptor{
			FetchID:     "fetch_20250101_000000",
			StockSymbol: "TSLA",
			FetchTime:   "2025-01-01T00:00:00Z",
		},
	}

	got, err := NewResolver(doc, ".").FetchID("", false)
	require.NoError(t, err)
	assert.Equal(t, "fetch_20250101_000000", got)

	got, err = NewResolver(doc, ".").FetchID("fetch_20240101_000000", false)
	require.NoError(t, err)
	assert.Equal(t, "fetch_20240101_000000", got)

	// No fallback default for fetch ids.
	_, err = NewResolver(&Document{}, ".").FetchID("", true)
	require.ErrorIs(t, err, ErrUnresolvedIdentifier)

	got, err = NewResolver(&Document{}, ".").FetchID("", false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDataFileSynthesizedPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data", "raw"), 0o755))
	path := filepath.Join(root, "data", "raw", "raw_tsla_fetch_20250101_000000.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,open,high,low,close,volume\n"), 0o644))

	doc := &Document{RawDataDir: "data/raw"}
	got, err := NewResolver(doc, root).DataFile("TSLA", "fetch_20250101_000000", model.DataRaw)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestDataFileExplicitOverrideWins(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	override := filepath.Join("data", "alt", "custom.csv")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data", "alt"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, override), []byte("date\n"), 0o644))

	doc := &Document{
		ProcessedDataDir: "data/processed",
		CurrentFetch: &model.FetchDescriptor{
			FetchID:           "fetch_20250101_000000",
			StockSymbol:       "TSLA",
			FetchTime:         "2025-01-01T00:00:00Z",
			ProcessedDataFile: override,
		},
	}

	got, err := NewResolver(doc, root).DataFile("TSLA", "fetch_20250101_000000", model.DataProcessed)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, override), got)
}

func TestDataFileMissingIsError(t *testing.T) {
	t.Parallel()

	doc := &Document{ProcessedDataDir: "data/processed"}
	_, err := NewResolver(doc, t.TempDir()).DataFile("TSLA", "fetch_20250101_000000", model.DataProcessed)
	require.ErrorIs(t, err, ErrDataFileNotFound)
}

func TestArtifactName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cleaned_tsla_fetch_20250101_000000.csv",
		ArtifactName(model.DataCleaned, "TSLA", "fetch_20250101_000000"))
}
