// Package model defines the artifact descriptors shared by the pipeline
// stages and the state document.
package model

import (
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/marketlab/stockpipe/internal/ident"
)

var validate = validator.New()

// DataKind names a tabular artifact produced by a pipeline stage.
type DataKind string

const (
	DataRaw       DataKind = "raw"
	DataCleaned   DataKind = "cleaned"
	DataProcessed DataKind = "processed"
)

// FetchDescriptor records one completed data-fetch operation. It is created
// by the fetch stage and never mutated afterwards; the next fetch supersedes
// it with a new descriptor under a new fetch ID.
type FetchDescriptor struct {
	FetchID           string  `json:"fetch_id" validate:"required,startswith=fetch_"`
	StockSymbol       string  `json:"stock_symbol" validate:"required,uppercase,excludes=_"`
	FetchTime         string  `json:"fetch_time" validate:"required"`
	RawDataFile       string  `json:"raw_data_file,omitempty"`
	CleanedDataFile   string  `json:"cleaned_data_file,omitempty"`
	ProcessedDataFile string  `json:"processed_data_file,omitempty"`
	DataStartDate     string  `json:"data_start_date,omitempty"`
	DataEndDate       string  `json:"data_end_date,omitempty"`
	APIFunction       string  `json:"api_function,omitempty"`
	DaysBack          int     `json:"days_back,omitempty"`
	OutputSize        string  `json:"outputsize,omitempty"`
	Interval          *string `json:"interval"`
	RowCount          int     `json:"row_count" validate:"gte=0"`
}

// IsZero reports whether the descriptor carries no data at all. An empty
// current_fetch never reaches the history ledger.
func (d *FetchDescriptor) IsZero() bool {
	return d == nil || *d == (FetchDescriptor{})
}

// DataFile returns the explicitly recorded artifact path for the given kind,
// if the producing stage wrote one.
func (d *FetchDescriptor) DataFile(kind DataKind) string {
	if d == nil {
		return ""
	}
	switch kind {
	case DataRaw:
		return d.RawDataFile
	case DataCleaned:
		return d.CleanedDataFile
	case DataProcessed:
		return d.ProcessedDataFile
	}
	return ""
}

// Validate checks the descriptor is structurally sufficient to resolve a
// symbol and fetch ID.
func (d *FetchDescriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return eris.Wrap(err, "model: invalid fetch descriptor")
	}
	return nil
}

// ModelDescriptor records one trained model artifact. One descriptor is
// produced per variant per training run; descriptors are appended to the
// models ledger and never deleted.
type ModelDescriptor struct {
	ModelID         string             `json:"model_id" validate:"required,startswith=model_"`
	StockSymbol     string             `json:"stock_symbol" validate:"required,uppercase"`
	FetchID         string             `json:"fetch_id" validate:"required"`
	Timestamp       string             `json:"timestamp" validate:"required,len=15"`
	OutlierHandling ident.Variant      `json:"outlier_handling" validate:"required"`
	Features        []string           `json:"features" validate:"required,min=1"`
	Target          string             `json:"target" validate:"required"`
	ModelType       string             `json:"model_type"`
	ModelFile       string             `json:"model_file,omitempty"`
	Hyperparameters map[string]any     `json:"hyperparameters"`
	Metrics         PerformanceMetrics `json:"performance_metrics"`
}

// Validate checks the descriptor and the internal consistency of its model
// ID against the independently stored timestamp.
func (d *ModelDescriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return eris.Wrap(err, "model: invalid model descriptor")
	}
	if !d.OutlierHandling.Valid() {
		return eris.Wrapf(ident.ErrInvalidIdentifier, "unrecognized variant %q", d.OutlierHandling)
	}
	ts, err := ident.ExtractTimestamp(d.ModelID)
	if err != nil {
		return err
	}
	if ts != d.Timestamp {
		return eris.Wrapf(ident.ErrInvalidIdentifier,
			"model id %q embeds timestamp %q but descriptor stores %q", d.ModelID, ts, d.Timestamp)
	}
	return nil
}

// PerformanceMetrics holds held-out regression metrics for a trained model.
type PerformanceMetrics struct {
	RMSE float64 `json:"RMSE"`
	MAE  float64 `json:"MAE"`
	R2   float64 `json:"R2"`
}
