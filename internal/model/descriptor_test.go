package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlab/stockpipe/internal/ident"
)

func validFetch() FetchDescriptor {
	return FetchDescriptor{
		FetchID:     "fetch_20250730_102338",
		StockSymbol: "TSLA",
		FetchTime:   "2025-07-30T10:23:38Z",
		RawDataFile: "data/raw_tsla_fetch_20250730_102338.csv",
		APIFunction: "TIME_SERIES_DAILY",
		DaysBack:    365,
		RowCount:    250,
	}
}

func TestFetchDescriptorValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*FetchDescriptor)
		ok     bool
	}{
		{"valid", func(d *FetchDescriptor) {}, true},
		{"missing fetch id", func(d *FetchDescriptor) { d.FetchID = "" }, false},
		{"wrong prefix", func(d *FetchDescriptor) { d.FetchID = "run_20250730_102338" }, false},
		{"lowercase symbol", func(d *FetchDescriptor) { d.StockSymbol = "tsla" }, false},
		{"underscore symbol", func(d *FetchDescriptor) { d.StockSymbol = "BRK_B" }, false},
		{"missing fetch time", func(d *FetchDescriptor) { d.FetchTime = "" }, false},
		{"negative rows", func(d *FetchDescriptor) { d.RowCount = -1 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := validFetch()
			tc.mutate(&d)
			err := d.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFetchDescriptorIsZero(t *testing.T) {
	t.Parallel()

	var nilDesc *FetchDescriptor
	assert.True(t, nilDesc.IsZero())
	assert.True(t, (&FetchDescriptor{}).IsZero())

	d := validFetch()
	assert.False(t, d.IsZero())
}

func TestFetchDescriptorDataFile(t *testing.T) {
	t.Parallel()

	d := validFetch()
	d.CleanedDataFile = "data/cleaned.csv"

	assert.Equal(t, d.RawDataFile, d.DataFile(DataRaw))
	assert.Equal(t, "data/cleaned.csv", d.DataFile(DataCleaned))
	assert.Equal(t, "", d.DataFile(DataProcessed))

	var nilDesc *FetchDescriptor
	assert.Equal(t, "", nilDesc.DataFile(DataRaw))
}

func validModel() ModelDescriptor {
	return ModelDescriptor{
		ModelID:         "model_tsla_20250730_102338_with_outliers",
		StockSymbol:     "TSLA",
		FetchID:         "fetch_20250730_102338",
		Timestamp:       "20250730_102338",
		OutlierHandling: ident.WithOutliers,
		Features:        []string{"prev_close", "volume", "ma5"},
		Target:          "next_close",
		ModelType:       "ridge_regression",
		ModelFile:       "models/model_tsla_20250730_102338_with_outliers.json",
	}
}

func TestModelDescriptorValidate(t *testing.T) {
	t.Parallel()

	d := validModel()
	require.NoError(t, d.Validate())

	bad := validModel()
	bad.Timestamp = "20250730_102399"
	err := bad.Validate()
	require.Error(t, err)

	mismatch := validModel()
	mismatch.Timestamp = "20240101_000000"
	err = mismatch.Validate()
	require.ErrorIs(t, err, ident.ErrInvalidIdentifier)

	noFeatures := validModel()
	noFeatures.Features = nil
	assert.Error(t, noFeatures.Validate())
}

func TestFeatureValue(t *testing.T) {
	t.Parallel()

	b := FeatureBar{
		CleanedBar: CleanedBar{Bar: Bar{Open: 1, High: 2, Low: 3, Close: 4, Volume: 5}},
		PrevClose:  6,
		MA5:        7,
		NextClose:  8,
	}

	for name, want := range map[string]float64{
		"open": 1, "high": 2, "low": 3, "close": 4, "volume": 5,
		"prev_close": 6, "ma5": 7, "next_close": 8,
	} {
		v, ok := b.FeatureValue(name)
		require.True(t, ok, name)
		assert.Equal(t, want, v, name)
	}

	_, ok := b.FeatureValue("rsi")
	assert.False(t, ok)
}
