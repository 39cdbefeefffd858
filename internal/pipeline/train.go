package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/dataset"
	"github.com/marketlab/stockpipe/internal/estimate"
	"github.com/marketlab/stockpipe/internal/ident"
	"github.com/marketlab/stockpipe/internal/model"
	"github.com/marketlab/stockpipe/internal/state"
)

// DefaultFeatures are the model inputs used when the state document does
// not configure its own feature list.
var DefaultFeatures = []string{"prev_close", "volume", "ma5"}

// DefaultTarget is the prediction target when the document does not set one.
const DefaultTarget = "next_close"

// TrainResult summarizes one training run.
type TrainResult struct {
	Models []model.ModelDescriptor
}

// Train fits one ridge model per outlier-handling variant on the processed
// series, saves the artifacts, records each model in the ledger, and
// replaces current_models wholesale.
//
// The without_outliers variant is trained only when the cleaned data
// actually contains flagged rows and dropping them leaves a usable series.
func (p *Pipeline) Train(ctx context.Context, req StageRequest) (*TrainResult, error) {
	doc, res, err := p.loadDoc()
	if err != nil {
		return nil, err
	}
	symbol, fetchID, err := resolveIDs(res, req)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("fetch_id", fetchID), zap.String("symbol", symbol))

	processedPath, err := res.DataFile(symbol, fetchID, model.DataProcessed)
	if err != nil {
		log.Error("resolve processed data failed", zap.Error(err))
		return nil, err
	}
	bars, err := dataset.Read[model.FeatureBar](processedPath)
	if err != nil {
		log.Error("load processed data failed", zap.Error(err))
		return nil, err
	}

	features := doc.Features
	if len(features) == 0 {
		features = DefaultFeatures
	}
	target := doc.Target
	if target == "" {
		target = DefaultTarget
	}

	// Each training run gets its own timestamp so retraining against the
	// same fetch mints new model IDs instead of overwriting the old ones.
	ts := p.now().UTC().Format(ident.TimestampLayout)

	result := &TrainResult{}
	currentModels := make(map[string]string)

	for _, variant := range ident.Variants {
		rows := bars
		if variant == ident.WithoutOutliers {
			rows = dropOutliers(bars)
			if len(rows) == len(bars) {
				log.Info("no outliers flagged, skipping variant",
					zap.String("variant", string(variant)))
				continue
			}
			if len(rows) < 2 {
				log.Warn("too few rows after dropping outliers, skipping variant",
					zap.String("variant", string(variant)), zap.Int("rows", len(rows)))
				continue
			}
		}

		desc, err := p.trainVariant(doc, symbol, fetchID, ts, variant, rows, features, target)
		if err != nil {
			log.Error("training failed", zap.String("variant", string(variant)), zap.Error(err))
			return nil, err
		}
		log.Info("model trained",
			zap.String("model_id", desc.ModelID),
			zap.Float64("rmse", desc.Metrics.RMSE),
			zap.Float64("r2", desc.Metrics.R2),
		)

		result.Models = append(result.Models, *desc)
		currentModels[string(variant)] = desc.ModelID

		if err := state.NewLedger(p.abs(p.modelsHistory)).Append(desc); err != nil {
			return nil, err
		}
	}

	if len(result.Models) == 0 {
		return nil, eris.New("pipeline: no models trained")
	}

	if err := p.store.Update(state.Patch{CurrentModels: currentModels}); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) trainVariant(
	doc *state.Document,
	symbol, fetchID, ts string,
	variant ident.Variant,
	rows []model.FeatureBar,
	features []string,
	target string,
) (*model.ModelDescriptor, error) {
	x, y, err := designMatrix(rows, features, target)
	if err != nil {
		return nil, err
	}
	trainX, trainY, testX, testY := chronoSplit(x, y, p.testSize)
	if len(trainX) == 0 {
		return nil, eris.New("pipeline: training split is empty")
	}

	ridge := estimate.NewRidge(features, p.ridgeLambda)
	if err := ridge.Fit(trainX, trainY); err != nil {
		return nil, err
	}

	var metrics model.PerformanceMetrics
	if len(testX) > 0 {
		preds := make([]float64, len(testX))
		for i, row := range testX {
			preds[i], err = ridge.Predict(row)
			if err != nil {
				return nil, err
			}
		}
		metrics = estimate.Evaluate(testY, preds)
	}

	modelID := ident.NewModelID(symbol, ts, variant)

	modelsDir := doc.ModelsDir
	if modelsDir == "" {
		modelsDir = "models"
	}
	rel := filepath.Join(modelsDir, modelID+".json")
	if err := ridge.Save(p.abs(rel)); err != nil {
		return nil, err
	}

	desc := &model.ModelDescriptor{
		ModelID:         modelID,
		StockSymbol:     symbol,
		FetchID:         fetchID,
		Timestamp:       ts,
		OutlierHandling: variant,
		Features:        features,
		Target:          target,
		ModelType:       "ridge_regression",
		ModelFile:       rel,
		Hyperparameters: ridge.Hyperparameters(),
		Metrics:         metrics,
	}
	return desc, nil
}

func dropOutliers(bars []model.FeatureBar) []model.FeatureBar {
	out := make([]model.FeatureBar, 0, len(bars))
	for _, b := range bars {
		if !b.IsOutlier {
			out = append(out, b)
		}
	}
	return out
}

// designMatrix projects the named feature and target columns out of the
// processed rows.
func designMatrix(rows []model.FeatureBar, features []string, target string) ([][]float64, []float64, error) {
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, row := range rows {
		vec := make([]float64, len(features))
		for j, name := range features {
			v, ok := row.FeatureValue(name)
			if !ok {
				return nil, nil, eris.Errorf("pipeline: unknown feature %q", name)
			}
			vec[j] = v
		}
		x[i] = vec

		v, ok := row.FeatureValue(target)
		if !ok {
			return nil, nil, eris.Errorf("pipeline: unknown target %q", target)
		}
		y[i] = v
	}
	return x, y, nil
}

// chronoSplit holds out the final fraction of the series. Rows are already
// in date order, so the test set is strictly later than the training set.
func chronoSplit(x [][]float64, y []float64, testSize float64) ([][]float64, []float64, [][]float64, []float64) {
	cut := len(x) - int(float64(len(x))*testSize)
	if cut < 1 {
		cut = 1
	}
	if cut > len(x) {
		cut = len(x)
	}
	return x[:cut], y[:cut], x[cut:], y[cut:]
}
