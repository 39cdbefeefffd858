package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/dataset"
	"github.com/marketlab/stockpipe/internal/ident"
	"github.com/marketlab/stockpipe/internal/model"
	"github.com/marketlab/stockpipe/internal/state"
	"github.com/marketlab/stockpipe/pkg/alphavantage"
)

// FetchRequest parameterizes one fetch-stage invocation. Zero values fall
// back to the defaults the fetch stage has always used.
type FetchRequest struct {
	Symbol      string // explicit symbol; resolution applies when empty
	FetchID     string // explicit fetch id; generated when empty
	APIFunction string
	DaysBack    int
	OutputSize  string
}

func (r *FetchRequest) applyDefaults() {
	if r.APIFunction == "" {
		r.APIFunction = "TIME_SERIES_DAILY"
	}
	if r.DaysBack <= 0 {
		r.DaysBack = 365
	}
	if r.OutputSize == "" {
		r.OutputSize = "full"
	}
}

// Fetch retrieves the daily series for the resolved symbol, writes the raw
// artifact, and republishes current_fetch. The previous descriptor is
// superseded, never mutated; the new one is appended to the fetch ledger.
func (p *Pipeline) Fetch(ctx context.Context, req FetchRequest) (*model.FetchDescriptor, error) {
	if p.market == nil {
		return nil, eris.New("pipeline: no market-data client configured")
	}
	req.applyDefaults()

	doc, err := p.loadDocOrEmpty()
	if err != nil {
		return nil, err
	}

	symbol, err := state.NewResolver(doc, p.root).StockSymbol(req.Symbol, false)
	if err != nil {
		return nil, err
	}
	if err := ident.ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	now := p.now().UTC()
	fetchID := req.FetchID
	if fetchID == "" {
		fetchID = ident.NewFetchID(now)
	}
	log := zap.L().With(zap.String("fetch_id", fetchID), zap.String("symbol", symbol))
	log.Info("fetching daily series",
		zap.String("function", req.APIFunction),
		zap.Int("days_back", req.DaysBack),
	)

	bars, err := p.market.Daily(ctx, symbol,
		alphavantage.DailyOptionsFor(req.APIFunction, req.OutputSize)...)
	if err != nil {
		log.Error("fetch failed", zap.Error(err))
		return nil, err
	}

	cutoff := now.AddDate(0, 0, -req.DaysBack).Truncate(24 * time.Hour)
	kept := bars[:0]
	for _, b := range bars {
		if !b.Date.Before(cutoff) {
			kept = append(kept, b)
		}
	}
	bars = kept

	rel := filepath.Join(doc.DirFor(model.DataRaw), state.ArtifactName(model.DataRaw, symbol, fetchID))
	if err := dataset.Write(p.abs(rel), bars); err != nil {
		log.Error("save raw data failed", zap.Error(err))
		return nil, err
	}
	log.Info("raw data saved", zap.String("path", rel), zap.Int("rows", len(bars)))

	desc := &model.FetchDescriptor{
		FetchID:     fetchID,
		StockSymbol: symbol,
		FetchTime:   now.Format(time.RFC3339),
		RawDataFile: rel,
		APIFunction: req.APIFunction,
		DaysBack:    req.DaysBack,
		OutputSize:  req.OutputSize,
		RowCount:    len(bars),
	}
	if len(bars) > 0 {
		desc.DataStartDate = bars[0].Date.Format("2006-01-02")
		desc.DataEndDate = bars[len(bars)-1].Date.Format("2006-01-02")
	}

	if err := p.store.Update(state.Patch{
		CurrentFetch: desc,
		HistoryPath:  p.abs(p.fetchHistory),
	}); err != nil {
		log.Error("publish current_fetch failed", zap.Error(err))
		return nil, err
	}

	return desc, nil
}
