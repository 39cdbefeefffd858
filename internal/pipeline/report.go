package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/dataset"
	"github.com/marketlab/stockpipe/internal/ident"
	"github.com/marketlab/stockpipe/internal/model"
	"github.com/marketlab/stockpipe/internal/state"
)

// ReportRow is one line of the model evaluation summary.
type ReportRow struct {
	ModelID      string  `csv:"model_id"`
	ModelVariant string  `csv:"model_variant"`
	FetchID      string  `csv:"fetch_id"`
	Timestamp    string  `csv:"timestamp"`
	RMSE         float64 `csv:"rmse"`
	MAE          float64 `csv:"mae"`
	R2           float64 `csv:"r2"`
	Status       string  `csv:"status"`
}

// Report statuses.
const (
	StatusOK     = "OK"
	StatusReview = "Review"
)

// Report reads the models ledger, keeps the latest training run for the
// resolved symbol and fetch, and writes an evaluation summary. Models whose
// held-out R-squared falls below the review threshold are marked for review.
func (p *Pipeline) Report(ctx context.Context, req StageRequest) (string, []ReportRow, error) {
	doc, res, err := p.loadDoc()
	if err != nil {
		return "", nil, err
	}
	symbol, fetchID, err := resolveIDs(res, req)
	if err != nil {
		return "", nil, err
	}
	log := zap.L().With(zap.String("fetch_id", fetchID), zap.String("symbol", symbol))

	descs, err := state.ReadAll[model.ModelDescriptor](p.abs(p.modelsHistory))
	if err != nil {
		log.Error("read models ledger failed", zap.Error(err))
		return "", nil, err
	}

	rows := summarize(descs, symbol, fetchID, p.reviewThreshold)
	if len(rows) == 0 {
		return "", nil, eris.Errorf("pipeline: no trained models for %s / %s", symbol, fetchID)
	}
	for _, r := range rows {
		if r.Status == StatusReview {
			log.Warn("model flagged for review",
				zap.String("model_id", r.ModelID), zap.Float64("r2", r.R2))
		}
	}

	rel := p.reportPath(doc, symbol)
	if err := dataset.Write(p.abs(rel), rows); err != nil {
		log.Error("save model summary failed", zap.Error(err))
		return "", nil, err
	}
	log.Info("model summary saved", zap.String("path", rel), zap.Int("models", len(rows)))

	return rel, rows, nil
}

func (p *Pipeline) reportPath(doc *state.Document, symbol string) string {
	dir := doc.DocsModelEvalDir
	if dir == "" {
		dir = filepath.Join("docs", "model_evaluation")
	}
	name := fmt.Sprintf("%s_model_summary_%s.csv",
		strings.ToLower(symbol), p.now().UTC().Format(ident.TimestampLayout))
	return filepath.Join(dir, name)
}

// summarize filters the ledger to the given symbol and fetch, keeps only the
// most recent training timestamp, and grades each surviving model.
func summarize(descs []model.ModelDescriptor, symbol, fetchID string, threshold float64) []ReportRow {
	var latest string
	for _, d := range descs {
		if !strings.EqualFold(d.StockSymbol, symbol) || d.FetchID != fetchID {
			continue
		}
		if d.Timestamp > latest {
			latest = d.Timestamp
		}
	}

	var rows []ReportRow
	for _, d := range descs {
		if !strings.EqualFold(d.StockSymbol, symbol) || d.FetchID != fetchID || d.Timestamp != latest {
			continue
		}
		status := StatusOK
		if d.Metrics.R2 < threshold {
			status = StatusReview
		}
		rows = append(rows, ReportRow{
			ModelID:      d.ModelID,
			ModelVariant: string(d.OutlierHandling),
			FetchID:      d.FetchID,
			Timestamp:    d.Timestamp,
			RMSE:         d.Metrics.RMSE,
			MAE:          d.Metrics.MAE,
			R2:           d.Metrics.R2,
			Status:       status,
		})
	}
	return rows
}
