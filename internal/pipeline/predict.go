package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/dataset"
	"github.com/marketlab/stockpipe/internal/estimate"
	"github.com/marketlab/stockpipe/internal/ident"
	"github.com/marketlab/stockpipe/internal/model"
)

// Predict produces the next-day close prediction for every model currently
// published in current_models and writes them to one predictions artifact.
// A model whose artifact file is missing is skipped with a warning; the
// stage fails only when no model can be loaded at all.
func (p *Pipeline) Predict(ctx context.Context, req StageRequest) (string, []model.Prediction, error) {
	doc, res, err := p.loadDoc()
	if err != nil {
		return "", nil, err
	}
	symbol, fetchID, err := resolveIDs(res, req)
	if err != nil {
		return "", nil, err
	}
	log := zap.L().With(zap.String("fetch_id", fetchID), zap.String("symbol", symbol))

	if len(doc.CurrentModels) == 0 {
		return "", nil, eris.New("pipeline: no current models, run train first")
	}

	processedPath, err := res.DataFile(symbol, fetchID, model.DataProcessed)
	if err != nil {
		log.Error("resolve processed data failed", zap.Error(err))
		return "", nil, err
	}
	bars, err := dataset.Read[model.FeatureBar](processedPath)
	if err != nil {
		log.Error("load processed data failed", zap.Error(err))
		return "", nil, err
	}
	if len(bars) == 0 {
		return "", nil, eris.New("pipeline: processed data is empty")
	}
	last := bars[len(bars)-1]

	modelsDir := doc.ModelsDir
	if modelsDir == "" {
		modelsDir = "models"
	}

	now := p.now().UTC()
	nextDate := last.Date.Add(24 * time.Hour)

	variants := make([]string, 0, len(doc.CurrentModels))
	for v := range doc.CurrentModels {
		variants = append(variants, v)
	}
	sort.Strings(variants)

	var preds []model.Prediction
	for _, variant := range variants {
		modelID := doc.CurrentModels[variant]
		artifact := p.abs(filepath.Join(modelsDir, modelID+".json"))

		ridge, err := estimate.Load(artifact)
		if err != nil {
			log.Warn("model artifact not loadable, skipping",
				zap.String("model_id", modelID), zap.Error(err))
			continue
		}

		vec := make([]float64, len(ridge.Features))
		ok := true
		for i, name := range ridge.Features {
			v, found := last.FeatureValue(name)
			if !found {
				log.Warn("model uses unknown feature, skipping",
					zap.String("model_id", modelID), zap.String("feature", name))
				ok = false
				break
			}
			vec[i] = v
		}
		if !ok {
			continue
		}

		value, err := ridge.Predict(vec)
		if err != nil {
			log.Warn("prediction failed, skipping",
				zap.String("model_id", modelID), zap.Error(err))
			continue
		}
		log.Info("predicted next close",
			zap.String("model_id", modelID),
			zap.String("variant", variant),
			zap.Float64("value", value),
		)

		preds = append(preds, model.Prediction{
			FutureDate:         nextDate,
			PredictedNextClose: value,
			ModelVariant:       ident.Variant(variant),
			BasedOnDate:        last.Date,
			FetchID:            fetchID,
			ModelID:            modelID,
			Timestamp:          now.Format(time.RFC3339),
		})
	}
	if len(preds) == 0 {
		return "", nil, eris.New("pipeline: no model could be loaded")
	}

	predictionsDir := doc.PredictionsDir
	if predictionsDir == "" {
		predictionsDir = filepath.Join("data", "predictions")
	}
	name := fmt.Sprintf("%s_predictions_%s.csv",
		strings.ToLower(symbol), now.Format(ident.TimestampLayout))
	rel := filepath.Join(predictionsDir, name)
	if err := dataset.Write(p.abs(rel), preds); err != nil {
		log.Error("save predictions failed", zap.Error(err))
		return "", nil, err
	}
	log.Info("predictions saved", zap.String("path", rel), zap.Int("models", len(preds)))

	return rel, preds, nil
}
