// Package state implements the pipeline's shared state document, the
// append-only history ledgers, and the identifier resolution layer the
// stages coordinate through.
package state

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/marketlab/stockpipe/internal/model"
)

// Document is the typed view of the state document. All pipeline stages read
// and patch it through a Store; nothing mutates the backing file directly.
//
// Unknown top-level keys survive read-modify-write cycles via Extra so that
// an older or newer stage never drops fields it does not understand.
type Document struct {
	ProjectRoot      string `json:"project_root,omitempty"`
	LogDir           string `json:"log_dir,omitempty"`
	PlotsDir         string `json:"plots_dir,omitempty"`
	ModelsDir        string `json:"models_dir,omitempty"`
	RawDataDir       string `json:"raw_data_dir,omitempty"`
	ProcessedDataDir string `json:"processed_data_dir,omitempty"`
	PredictionsDir   string `json:"predictions_dir,omitempty"`
	OutliersDir      string `json:"outliers_dir,omitempty"`
	DocsDataEvalDir  string `json:"docs_data_eval_dir,omitempty"`
	DocsModelEvalDir string `json:"docs_model_eval_dir,omitempty"`

	// StockSymbol is the legacy top-level key consulted by symbol
	// resolution after current_fetch.
	StockSymbol string `json:"stock_symbol,omitempty"`

	Features []string `json:"features,omitempty"`
	Target   string   `json:"target,omitempty"`

	CurrentFetch  *model.FetchDescriptor `json:"current_fetch,omitempty"`
	CurrentModels map[string]string      `json:"current_models,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// knownKeys are the top-level keys captured by named Document fields.
var knownKeys = map[string]struct{}{
	"project_root": {}, "log_dir": {}, "plots_dir": {}, "models_dir": {},
	"raw_data_dir": {}, "processed_data_dir": {}, "predictions_dir": {},
	"outliers_dir": {}, "docs_data_eval_dir": {}, "docs_model_eval_dir": {},
	"stock_symbol": {}, "features": {}, "target": {},
	"current_fetch": {}, "current_models": {},
}

type documentAlias Document

// UnmarshalJSON decodes known keys into named fields and stashes the rest
// in Extra.
func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var alias documentAlias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}
	*d = Document(alias)

	for k, v := range raw {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		if d.Extra == nil {
			d.Extra = map[string]json.RawMessage{}
		}
		d.Extra[k] = v
	}
	return nil
}

// MarshalJSON renders named fields and Extra as one flat object. Named
// fields win on key collisions. An empty current_fetch or current_models is
// rendered as an empty object rather than omitted, so an initialized
// document always shows both pointers.
func (d Document) MarshalJSON() ([]byte, error) {
	out := map[string]json.RawMessage{}
	for k, v := range d.Extra {
		out[k] = v
	}

	alias := documentAlias(d)
	b, err := json.Marshal(alias)
	if err != nil {
		return nil, err
	}
	var named map[string]json.RawMessage
	if err := json.Unmarshal(b, &named); err != nil {
		return nil, err
	}
	for k, v := range named {
		out[k] = v
	}

	if d.CurrentFetch != nil && d.CurrentFetch.IsZero() {
		out["current_fetch"] = json.RawMessage(`{}`)
	}
	if d.CurrentModels != nil && len(d.CurrentModels) == 0 {
		out["current_models"] = json.RawMessage(`{}`)
	}

	return json.Marshal(out)
}

// mergeFields applies a shallow top-level merge: each supplied key overwrites
// the key of the same name, all others are untouched. The current pointers
// are patched through their dedicated Patch fields, never through here.
func (d *Document) mergeFields(fields map[string]any) error {
	for k := range fields {
		if k == "current_fetch" || k == "current_models" {
			return eris.Errorf("state: %s must be patched via its dedicated field, not merged", k)
		}
	}

	b, err := json.Marshal(fields)
	if err != nil {
		return eris.Wrap(err, "state: marshal merge fields")
	}

	// Unmarshal over the existing value: only keys present in b change.
	if err := json.Unmarshal(b, (*documentAlias)(d)); err != nil {
		return eris.Wrap(err, "state: merge fields")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "state: merge fields")
	}
	for k, v := range raw {
		if _, ok := knownKeys[k]; ok {
			continue
		}
		if d.Extra == nil {
			d.Extra = map[string]json.RawMessage{}
		}
		d.Extra[k] = v
	}
	return nil
}

// DirFor returns the configured directory for a data kind, falling back to
// "data" when the key is unset.
func (d *Document) DirFor(kind model.DataKind) string {
	if d == nil {
		return "data"
	}
	var dir string
	switch kind {
	case model.DataRaw:
		dir = d.RawDataDir
	case model.DataCleaned, model.DataProcessed:
		dir = d.ProcessedDataDir
	}
	if dir == "" {
		return "data"
	}
	return dir
}
