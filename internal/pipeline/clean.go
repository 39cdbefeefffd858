package pipeline

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/dataset"
	"github.com/marketlab/stockpipe/internal/model"
	"github.com/marketlab/stockpipe/internal/state"
)

// StageRequest carries the optional explicit identifiers accepted by every
// post-fetch stage.
type StageRequest struct {
	Symbol  string
	FetchID string
}

// outliersFile is the manually curated outlier list consulted by the clean
// stage, kept under the configured outliers directory.
const outliersFile = "outliers.json"

type outlierEntry struct {
	Date   string `json:"date"`
	Reason string `json:"reason,omitempty"`
}

type outliersDoc struct {
	Outliers []outlierEntry `json:"outliers"`
}

// Clean validates and normalizes the raw series, flags curated outliers,
// writes the cleaned artifact, and records it under current_fetch.
func (p *Pipeline) Clean(ctx context.Context, req StageRequest) (string, error) {
	doc, res, err := p.loadDoc()
	if err != nil {
		return "", err
	}
	symbol, fetchID, err := resolveIDs(res, req)
	if err != nil {
		return "", err
	}
	log := zap.L().With(zap.String("fetch_id", fetchID), zap.String("symbol", symbol))

	rawPath, err := res.DataFile(symbol, fetchID, model.DataRaw)
	if err != nil {
		log.Error("resolve raw data failed", zap.Error(err))
		return "", err
	}
	bars, err := dataset.Read[model.Bar](rawPath, dataset.BarColumns...)
	if err != nil {
		log.Error("load raw data failed", zap.Error(err))
		return "", err
	}

	bars, err = cleanBars(bars, log)
	if err != nil {
		log.Error("cleaning failed", zap.Error(err))
		return "", err
	}

	cleaned := make([]model.CleanedBar, len(bars))
	for i, b := range bars {
		cleaned[i] = model.CleanedBar{Bar: b}
	}
	flagOutliers(cleaned, p.abs(filepath.Join(outliersDir(doc), outliersFile)), log)

	rel := filepath.Join(doc.DirFor(model.DataCleaned), state.ArtifactName(model.DataCleaned, symbol, fetchID))
	if err := dataset.Write(p.abs(rel), cleaned); err != nil {
		log.Error("save cleaned data failed", zap.Error(err))
		return "", err
	}
	log.Info("cleaned data saved", zap.String("path", rel), zap.Int("rows", len(cleaned)))

	if err := p.recordDataFile(doc, fetchID, model.DataCleaned, rel); err != nil {
		return "", err
	}
	return rel, nil
}

// recordDataFile writes the stage's artifact path back into current_fetch.
// When the stage ran against an explicit fetch that is not the current one,
// there is nothing to record.
func (p *Pipeline) recordDataFile(doc *state.Document, fetchID string, kind model.DataKind, rel string) error {
	if doc.CurrentFetch.IsZero() || doc.CurrentFetch.FetchID != fetchID {
		return nil
	}
	cf := *doc.CurrentFetch
	switch kind {
	case model.DataCleaned:
		cf.CleanedDataFile = rel
	case model.DataProcessed:
		cf.ProcessedDataFile = rel
	}
	return p.store.Update(state.Patch{CurrentFetch: &cf})
}

func resolveIDs(res *state.Resolver, req StageRequest) (string, string, error) {
	symbol, err := res.StockSymbol(req.Symbol, false)
	if err != nil {
		return "", "", err
	}
	fetchID, err := res.FetchID(req.FetchID, true)
	if err != nil {
		return "", "", err
	}
	return symbol, fetchID, nil
}

func outliersDir(doc *state.Document) string {
	if doc.OutliersDir != "" {
		return doc.OutliersDir
	}
	return "data/outliers"
}

// cleanBars sorts the series, drops duplicate dates keeping the first
// occurrence, forward-fills NaN values, and validates the result.
func cleanBars(bars []model.Bar, log *zap.Logger) ([]model.Bar, error) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	out := bars[:0]
	var prev *model.Bar
	dropped := 0
	for i := range bars {
		if prev != nil && bars[i].Date.Equal(prev.Date) {
			dropped++
			continue
		}
		out = append(out, bars[i])
		prev = &out[len(out)-1]
	}
	if dropped > 0 {
		log.Info("removed duplicate rows", zap.Int("count", dropped))
	}

	filled := 0
	for i := range out {
		fields := []*float64{&out[i].Open, &out[i].High, &out[i].Low, &out[i].Close, &out[i].Volume}
		for j, f := range fields {
			if !math.IsNaN(*f) {
				continue
			}
			if i == 0 {
				return nil, eris.New("pipeline: first row has missing values, cannot forward fill")
			}
			last := []float64{out[i-1].Open, out[i-1].High, out[i-1].Low, out[i-1].Close, out[i-1].Volume}
			*f = last[j]
			filled++
		}
	}
	if filled > 0 {
		log.Info("forward filled missing values", zap.Int("count", filled))
	}

	for _, b := range out {
		if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 || b.Volume < 0 {
			return nil, eris.Errorf("pipeline: negative values on %s", b.Date.Format("2006-01-02"))
		}
	}
	return out, nil
}

// flagOutliers marks rows listed in the curated outliers file. A missing or
// unreadable file skips flagging; the clean stage still succeeds.
func flagOutliers(bars []model.CleanedBar, path string, log *zap.Logger) {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Warn("outliers file not readable, skipping outlier flagging", zap.String("path", path))
		return
	}
	var od outliersDoc
	if err := json.Unmarshal(b, &od); err != nil {
		log.Error("invalid outliers file, skipping outlier flagging", zap.String("path", path), zap.Error(err))
		return
	}
	if len(od.Outliers) == 0 {
		log.Info("no outliers defined, nothing to flag")
		return
	}

	byDate := make(map[time.Time]int, len(bars))
	for i, bar := range bars {
		byDate[bar.Date] = i
	}
	for _, entry := range od.Outliers {
		day, err := time.ParseInLocation("2006-01-02", entry.Date, time.UTC)
		if err != nil {
			log.Error("invalid outlier entry", zap.String("date", entry.Date), zap.Error(err))
			continue
		}
		if i, ok := byDate[day]; ok {
			bars[i].IsOutlier = true
			log.Info("flagged outlier", zap.String("date", entry.Date))
		} else {
			log.Warn("outlier date not in data", zap.String("date", entry.Date))
		}
	}
}
