package model

import (
	"time"

	"github.com/marketlab/stockpipe/internal/ident"
)

// Bar is one daily OHLCV row of a price series. Dates are UTC and the series
// is kept in ascending date order.
type Bar struct {
	Date   time.Time `csv:"date"`
	Open   float64   `csv:"open"`
	High   float64   `csv:"high"`
	Low    float64   `csv:"low"`
	Close  float64   `csv:"close"`
	Volume float64   `csv:"volume"`
}

// CleanedBar is a Bar after the cleaning step, carrying the outlier flag
// consulted by the training stage.
type CleanedBar struct {
	Bar
	IsOutlier bool `csv:"is_outlier"`
}

// FeatureBar is a CleanedBar with the engineered feature and target columns.
type FeatureBar struct {
	CleanedBar
	PrevClose float64 `csv:"prev_close"`
	MA5       float64 `csv:"ma5"`
	NextClose float64 `csv:"next_close"`
}

// FeatureValue returns the named feature column of the row. The recognized
// names match the feature list stored in the state document.
func (b FeatureBar) FeatureValue(name string) (float64, bool) {
	switch name {
	case "prev_close":
		return b.PrevClose, true
	case "ma5":
		return b.MA5, true
	case "volume":
		return b.Volume, true
	case "open":
		return b.Open, true
	case "high":
		return b.High, true
	case "low":
		return b.Low, true
	case "close":
		return b.Close, true
	case "next_close":
		return b.NextClose, true
	}
	return 0, false
}

// Prediction is one row of a predictions artifact: the next-day close
// predicted by one model variant.
type Prediction struct {
	FutureDate         time.Time     `csv:"future_date"`
	PredictedNextClose float64       `csv:"predicted_next_close"`
	ModelVariant       ident.Variant `csv:"model_variant"`
	BasedOnDate        time.Time     `csv:"based_on_date"`
	FetchID            string        `csv:"fetch_id"`
	ModelID            string        `csv:"model_id"`
	Timestamp          string        `csv:"timestamp"`
}
