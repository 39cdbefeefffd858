// Package pipeline implements the stock-prediction stages: fetch, clean,
// feature, train, predict, report. Each stage reads one versioned artifact
// and writes the next, coordinated through the shared state document.
package pipeline

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/marketlab/stockpipe/internal/state"
	"github.com/marketlab/stockpipe/pkg/alphavantage"
)

// Pipeline wires the stages to the state store and the market-data client.
// It is constructed once per process invocation and injected into the
// command layer; stages run strictly in sequence.
type Pipeline struct {
	store  state.Store
	root   string
	market alphavantage.Client

	fetchHistory  string
	modelsHistory string

	testSize        float64
	ridgeLambda     float64
	reviewThreshold float64

	now func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMarket sets the market-data client (only the fetch stage needs one).
func WithMarket(c alphavantage.Client) Option {
	return func(p *Pipeline) { p.market = c }
}

// WithFetchHistory sets the fetch ledger path, project-root-relative.
func WithFetchHistory(path string) Option {
	return func(p *Pipeline) { p.fetchHistory = path }
}

// WithModelsHistory sets the models ledger path, project-root-relative.
func WithModelsHistory(path string) Option {
	return func(p *Pipeline) { p.modelsHistory = path }
}

// WithTestSize sets the held-out fraction for the chronological split.
func WithTestSize(f float64) Option {
	return func(p *Pipeline) { p.testSize = f }
}

// WithRidgeLambda sets the estimator's regularization strength.
func WithRidgeLambda(l float64) Option {
	return func(p *Pipeline) { p.ridgeLambda = l }
}

// WithReviewThreshold sets the R-squared floor below which the report stage
// flags a model for review.
func WithReviewThreshold(r2 float64) Option {
	return func(p *Pipeline) { p.reviewThreshold = r2 }
}

// WithClock overrides the wall clock (for tests).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline over the given store. Artifact paths recorded in
// the state document are resolved relative to root.
func New(st state.Store, root string, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:           st,
		root:            root,
		fetchHistory:    "data/fetch_history.jsonl",
		modelsHistory:   "models/models_history.jsonl",
		testSize:        0.2,
		ridgeLambda:     1.0,
		reviewThreshold: 0.75,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// loadDoc re-reads the state document. Stages other than fetch require it
// to exist.
func (p *Pipeline) loadDoc() (*state.Document, *state.Resolver, error) {
	doc, err := p.store.Load()
	if err != nil {
		return nil, nil, err
	}
	return doc, state.NewResolver(doc, p.root), nil
}

// loadDocOrEmpty is the fetch-stage variant: the very first fetch may run
// before the document has been initialized.
func (p *Pipeline) loadDocOrEmpty() (*state.Document, error) {
	doc, err := p.store.Load()
	if err != nil {
		if errors.Is(err, state.ErrConfigNotFound) {
			return &state.Document{}, nil
		}
		return nil, err
	}
	return doc, nil
}

// abs resolves a project-root-relative path.
func (p *Pipeline) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.root, rel)
}
