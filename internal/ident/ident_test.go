package ident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFetchID(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 17, 9, 35, 53, 0, time.UTC)
	assert.Equal(t, "fetch_20250617_093553", NewFetchID(now))
}

func TestNewModelID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		symbol  string
		ts      string
		variant Variant
		want    string
	}{
		{"lowercases symbol", "TSLA", "20250730_102338", WithOutliers, "model_tsla_20250730_102338_with_outliers"},
		{"without outliers", "aapl", "20250101_000000", WithoutOutliers, "model_aapl_20250101_000000_without_outliers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewModelID(tt.symbol, tt.ts, tt.variant))
		})
	}
}

func TestExtractTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modelID string
		want    string
		wantErr error
	}{
		{"with outliers", "model_tsla_20250730_102338_with_outliers", "20250730_102338", nil},
		{"without outliers", "model_aapl_20250617_093553_without_outliers", "20250617_093553", nil},
		{"round trip", NewModelID("MSFT", "20240229_235959", WithOutliers), "20240229_235959", nil},
		{"too few segments", "model_tsla_with_outliers", "", ErrInvalidIdentifier},
		{"empty", "", "", ErrInvalidIdentifier},
		{"wrong prefix", "fetch_tsla_20250730_102338_with_outliers", "", ErrInvalidIdentifier},
		{"unknown variant", "model_tsla_20250730_102338_no_outliers", "", ErrInvalidIdentifier},
		{"garbage timestamp", "model_tsla_2025073x_102338_with_outliers", "", ErrInvalidTimestamp},
		{"reordered segments", "model_102338_20250730_tsla_with_outliers", "", ErrInvalidTimestamp},
		{"month out of range", "model_tsla_20251330_102338_with_outliers", "", ErrInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractTimestamp(tt.modelID)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateSymbol(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSymbol("TSLA"))
	require.NoError(t, ValidateSymbol("BRK.B"))
	require.ErrorIs(t, ValidateSymbol(""), ErrInvalidSymbol)
	require.ErrorIs(t, ValidateSymbol("BRK_B"), ErrInvalidSymbol)
}

func TestVariantValid(t *testing.T) {
	t.Parallel()

	assert.True(t, WithOutliers.Valid())
	assert.True(t, WithoutOutliers.Valid())
	assert.False(t, Variant("no_outliers").Valid())
	assert.False(t, Variant("").Valid())
}
