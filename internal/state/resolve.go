package state

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/model"
)

var (
	// ErrUnresolvedIdentifier indicates no resolution source yielded a value
	// for a mandatory identifier.
	ErrUnresolvedIdentifier = eris.New("state: unresolved identifier")
	// ErrDataFileNotFound indicates the resolved artifact path does not
	// exist on storage.
	ErrDataFileNotFound = eris.New("state: data file not found")
)

// SymbolEnvVar is the environment fallback for stock-symbol resolution.
const SymbolEnvVar = "STOCKPIPE_SYMBOL"

// DefaultSymbol is returned by optional symbol resolution when no source
// yields a value.
const DefaultSymbol = "TSLA"

// Source yields an identifier candidate. The precedence order of a
// resolution is the order of its Source list; the first non-empty result
// wins.
type Source func() (string, bool)

// Explicit wraps a caller-supplied value, typically a command-line flag.
func Explicit(v string) Source {
	return func() (string, bool) { return v, v != "" }
}

// FromEnv reads the value from an environment variable.
func FromEnv(key string) Source {
	return func() (string, bool) {
		v := os.Getenv(key)
		return v, v != ""
	}
}

func first(sources []Source) (string, bool) {
	for _, src := range sources {
		if v, ok := src(); ok {
			return v, true
		}
	}
	return "", false
}

// Resolver determines which symbol, fetch, and data file a pipeline stage
// operates on, given optional explicit identifiers and the loaded document.
type Resolver struct {
	doc  *Document
	root string
}

// NewResolver creates a resolver over the loaded document. Data-file paths
// recorded in the document are taken relative to root.
func NewResolver(doc *Document, root string) *Resolver {
	return &Resolver{doc: doc, root: root}
}

// symbolSources returns the resolution chain for stock symbols, highest
// precedence first: explicit value, current_fetch, the legacy top-level
// key, then the environment.
func (r *Resolver) symbolSources(explicit string) []Source {
	return []Source{
		Explicit(explicit),
		func() (string, bool) {
			if r.doc != nil && r.doc.CurrentFetch != nil && r.doc.CurrentFetch.StockSymbol != "" {
				return r.doc.CurrentFetch.StockSymbol, true
			}
			return "", false
		},
		func() (string, bool) {
			if r.doc != nil && r.doc.StockSymbol != "" {
				return r.doc.StockSymbol, true
			}
			return "", false
		},
		FromEnv(SymbolEnvVar),
	}
}

// StockSymbol resolves the stock symbol, uppercased. When mandatory and no
// source yields a value it fails; when optional it falls back to
// DefaultSymbol.
func (r *Resolver) StockSymbol(explicit string, mandatory bool) (string, error) {
	v, ok := first(r.symbolSources(explicit))
	if !ok {
		if mandatory {
			return "", eris.Wrap(ErrUnresolvedIdentifier, "stock symbol")
		}
		zap.L().Debug("no stock symbol source, using default", zap.String("symbol", DefaultSymbol))
		return DefaultSymbol, nil
	}
	return strings.ToUpper(v), nil
}

// FetchID resolves the fetch identifier: explicit value first, then
// current_fetch. There is no fallback default: when mandatory, absence is
// an error; otherwise the empty string is returned.
func (r *Resolver) FetchID(explicit string, mandatory bool) (string, error) {
	sources := []Source{
		Explicit(explicit),
		func() (string, bool) {
			if r.doc != nil && r.doc.CurrentFetch != nil && r.doc.CurrentFetch.FetchID != "" {
				return r.doc.CurrentFetch.FetchID, true
			}
			return "", false
		},
	}
	v, ok := first(sources)
	if !ok {
		if mandatory {
			return "", eris.Wrap(ErrUnresolvedIdentifier, "fetch id")
		}
		return "", nil
	}
	return v, nil
}

// DataFile resolves the tabular artifact of the given kind for a
// symbol/fetch pair. An explicit path recorded under current_fetch by the
// producing stage takes precedence; otherwise the path is synthesized from
// the configured directory and the fixed naming convention. The resolved
// path must exist.
func (r *Resolver) DataFile(symbol, fetchID string, kind model.DataKind) (string, error) {
	var rel string
	if r.doc != nil {
		rel = r.doc.CurrentFetch.DataFile(kind)
	}
	if rel == "" {
		rel = filepath.Join(r.doc.DirFor(kind), ArtifactName(kind, symbol, fetchID))
	}

	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.root, rel)
	}
	if _, err := os.Stat(path); err != nil {
		return "", eris.Wrapf(ErrDataFileNotFound, "%s data at %s (fetch %s)", kind, path, fetchID)
	}
	return path, nil
}

// ArtifactName is the fixed naming convention for tabular artifacts.
func ArtifactName(kind model.DataKind, symbol, fetchID string) string {
	return string(kind) + "_" + strings.ToLower(symbol) + "_" + fetchID + ".csv"
}
