package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/dataset"
	"github.com/marketlab/stockpipe/internal/model"
	"github.com/marketlab/stockpipe/internal/state"
)

// Feature derives the model inputs from the cleaned series and writes the
// processed artifact.
//
// prev_close is the previous day's close, with the first row falling back to
// its own close. ma5 is the five day rolling mean of close, averaging what is
// available while the window warms up. next_close is the following day's
// close, with the last row falling back to its own close.
func (p *Pipeline) Feature(ctx context.Context, req StageRequest) (string, error) {
	doc, res, err := p.loadDoc()
	if err != nil {
		return "", err
	}
	symbol, fetchID, err := resolveIDs(res, req)
	if err != nil {
		return "", err
	}
	log := zap.L().With(zap.String("fetch_id", fetchID), zap.String("symbol", symbol))

	cleanedPath, err := res.DataFile(symbol, fetchID, model.DataCleaned)
	if err != nil {
		log.Error("resolve cleaned data failed", zap.Error(err))
		return "", err
	}
	bars, err := dataset.Read[model.CleanedBar](cleanedPath, dataset.BarColumns...)
	if err != nil {
		log.Error("load cleaned data failed", zap.Error(err))
		return "", err
	}
	if len(bars) == 0 {
		return "", eris.New("pipeline: cleaned data is empty")
	}

	processed := Engineer(bars)

	rel := filepath.Join(doc.DirFor(model.DataProcessed), state.ArtifactName(model.DataProcessed, symbol, fetchID))
	if err := dataset.Write(p.abs(rel), processed); err != nil {
		log.Error("save processed data failed", zap.Error(err))
		return "", err
	}
	log.Info("processed data saved", zap.String("path", rel), zap.Int("rows", len(processed)))

	if err := p.recordDataFile(doc, fetchID, model.DataProcessed, rel); err != nil {
		return "", err
	}
	return rel, nil
}

// Engineer computes the derived columns for an already cleaned series. The
// input must be sorted ascending by date.
func Engineer(bars []model.CleanedBar) []model.FeatureBar {
	out := make([]model.FeatureBar, len(bars))
	for i, b := range bars {
		fb := model.FeatureBar{CleanedBar: b}

		if i > 0 {
			fb.PrevClose = bars[i-1].Close
		} else {
			fb.PrevClose = b.Close
		}

		start := i - 4
		if start < 0 {
			start = 0
		}
		sum := 0.0
		for j := start; j <= i; j++ {
			sum += bars[j].Close
		}
		fb.MA5 = sum / float64(i-start+1)

		if i < len(bars)-1 {
			fb.NextClose = bars[i+1].Close
		} else {
			fb.NextClose = b.Close
		}

		out[i] = fb
	}
	return out
}
