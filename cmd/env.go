package main

import (
	"path/filepath"

	"github.com/marketlab/stockpipe/internal/pipeline"
	"github.com/marketlab/stockpipe/internal/state"
	"github.com/marketlab/stockpipe/pkg/alphavantage"
)

// projectPath resolves a project-root-relative path from configuration.
func projectPath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(cfg.State.ProjectRoot, rel)
}

// newStore opens the file-backed state document from configuration.
func newStore() *state.FileStore {
	return state.NewFileStore(projectPath(cfg.State.Path))
}

// newPipeline assembles the pipeline from configuration. withMarket controls
// whether an Alpha Vantage client is attached; only fetch needs one.
func newPipeline(withMarket bool) *pipeline.Pipeline {
	opts := []pipeline.Option{
		pipeline.WithFetchHistory(cfg.State.FetchHistory),
		pipeline.WithModelsHistory(cfg.State.ModelsHistory),
		pipeline.WithTestSize(cfg.Train.TestSize),
		pipeline.WithRidgeLambda(cfg.Train.RidgeLambda),
		pipeline.WithReviewThreshold(cfg.Train.ReviewThreshold),
	}
	if withMarket {
		opts = append(opts, pipeline.WithMarket(alphavantage.NewClient(
			cfg.AlphaVantage.Key,
			alphavantage.WithBaseURL(cfg.AlphaVantage.BaseURL),
			alphavantage.WithMaxRetries(cfg.AlphaVantage.MaxRetries),
		)))
	}
	return pipeline.New(newStore(), cfg.State.ProjectRoot, opts...)
}
