// Package dataset reads and writes the pipeline's tabular CSV artifacts.
package dataset

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// BarColumns are the columns every price-series artifact must carry.
var BarColumns = []string{"date", "open", "high", "low", "close", "volume"}

// Read decodes a CSV artifact into rows of T. The file must be non-empty and
// its header must contain every required column; columns beyond the struct's
// fields are ignored.
func Read[T any](path string, required ...string) ([]T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, eris.Errorf("dataset: %s is empty", path)
	}

	header, err := csv.NewReader(bytes.NewReader(b)).Read()
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read header of %s", path)
	}
	for _, col := range required {
		if !slices.Contains(header, col) {
			return nil, eris.Errorf("dataset: %s is missing required column %q", path, col)
		}
	}

	var rows []T
	if err := csvutil.Unmarshal(b, &rows); err != nil {
		return nil, eris.Wrapf(err, "dataset: decode %s", path)
	}
	return rows, nil
}

// Write encodes rows as a CSV artifact at path, creating parent directories
// as needed.
func Write[T any](path string, rows []T) error {
	b, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "dataset: encode %s", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "dataset: create %s", dir)
		}
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrapf(err, "dataset: write %s", path)
	}
	return nil
}
