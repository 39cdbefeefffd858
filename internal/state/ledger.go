package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Ledger is an append-only, newline-delimited JSON log. Entries are
// insertion-ordered and never rewritten or compacted; the ledger is the
// audit trail, distinct from the mutable current pointers in the document.
type Ledger struct {
	path string
}

// NewLedger creates a ledger backed by the JSONL file at path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// Append writes v as one JSON line, creating the file and its directory on
// first use.
func (l *Ledger) Append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "ledger: marshal entry for %s", l.path)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "ledger: create %s", dir)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s", l.path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(append(b, '\n')); err != nil {
		return eris.Wrapf(err, "ledger: append to %s", l.path)
	}
	return nil
}

// ReadAll decodes every line of the JSONL file at path into T, in insertion
// order. A missing file yields an empty slice.
func ReadAll[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ledger: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry T
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, eris.Wrapf(err, "ledger: decode line %d of %s", len(out)+1, path)
		}
		out = append(out, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "ledger: scan %s", path)
	}
	return out, nil
}
