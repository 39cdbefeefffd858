package state

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/model"
)

var (
	// ErrConfigNotFound indicates the state document file is absent.
	ErrConfigNotFound = eris.New("state: config not found")
	// ErrConfigCorrupt indicates the state document is not valid JSON.
	ErrConfigCorrupt = eris.New("state: config corrupt")
)

// Patch describes a partial, additive update to the state document.
// CurrentFetch and CurrentModels replace the existing values wholesale when
// set; Fields are shallow-merged key by key into the top level.
type Patch struct {
	CurrentFetch  *model.FetchDescriptor
	CurrentModels map[string]string
	Fields        map[string]any

	// HistoryPath, when non-empty and CurrentFetch is a non-empty
	// descriptor, appends one JSON line of CurrentFetch to that ledger.
	HistoryPath string
}

// Store provides read and merge-write access to the state document. Stages
// never touch the backing file directly.
type Store interface {
	// Load re-reads the document from storage. There is no caching.
	Load() (*Document, error)
	// Update applies the patch with last-writer-wins semantics.
	Update(patch Patch) error
}

// FileStore keeps the state document as a JSON file at a fixed path. Writes
// go through a temp-file-then-rename so a concurrent reader never observes a
// half-written document. Concurrent writers race; the pipeline is operated
// strictly sequentially.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the JSON document at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads and decodes the state document.
func (s *FileStore) Load() (*Document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrConfigNotFound, "%s", s.path)
		}
		return nil, eris.Wrapf(err, "state: read %s", s.path)
	}

	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, eris.Wrapf(ErrConfigCorrupt, "%s: %v", s.path, err)
	}

	if doc.CurrentFetch != nil && !doc.CurrentFetch.IsZero() {
		if err := doc.CurrentFetch.Validate(); err != nil {
			return nil, eris.Wrapf(ErrConfigCorrupt, "%s: %v", s.path, err)
		}
	}

	return &doc, nil
}

// Update reads the current document (or starts from an empty one when the
// file is absent), applies the patch, and writes the result back atomically.
// Failures before the final write leave the document untouched.
func (s *FileStore) Update(patch Patch) error {
	doc := &Document{}
	existing, err := s.Load()
	switch {
	case err == nil:
		doc = existing
	case errors.Is(err, ErrConfigNotFound):
		// First write bootstraps the document.
	default:
		return err
	}

	if err := applyPatch(doc, patch); err != nil {
		return err
	}

	if err := s.write(doc); err != nil {
		return err
	}

	return appendFetchHistory(patch)
}

func applyPatch(doc *Document, patch Patch) error {
	if patch.CurrentFetch != nil {
		cf := *patch.CurrentFetch
		doc.CurrentFetch = &cf
	}
	if patch.CurrentModels != nil {
		cm := make(map[string]string, len(patch.CurrentModels))
		for k, v := range patch.CurrentModels {
			cm[k] = v
		}
		doc.CurrentModels = cm
	}
	if len(patch.Fields) > 0 {
		if err := doc.mergeFields(patch.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) write(doc *Document) error {
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return eris.Wrap(err, "state: marshal document")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "state: create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "state: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "state: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "state: close %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "state: rename %s", tmpName)
	}

	zap.L().Debug("state document written", zap.String("path", s.path))
	return nil
}

// appendFetchHistory records the new current_fetch in the fetch ledger.
// Updates that only touch current_models or static fields never reach the
// ledger, and neither does an empty descriptor.
func appendFetchHistory(patch Patch) error {
	if patch.HistoryPath == "" || patch.CurrentFetch.IsZero() {
		return nil
	}
	return NewLedger(patch.HistoryPath).Append(patch.CurrentFetch)
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	doc     *Document
	History []model.FetchDescriptor
}

// NewMemStore creates an empty in-memory store. When doc is non-nil it
// seeds the initial document.
func NewMemStore(doc *Document) *MemStore {
	return &MemStore{doc: doc}
}

// Load returns a deep copy of the stored document.
func (s *MemStore) Load() (*Document, error) {
	if s.doc == nil {
		return nil, ErrConfigNotFound
	}
	b, err := json.Marshal(s.doc)
	if err != nil {
		return nil, eris.Wrap(err, "state: marshal document")
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, eris.Wrap(err, "state: unmarshal document")
	}
	return &out, nil
}

// Update applies the patch in memory, recording ledger appends in History.
func (s *MemStore) Update(patch Patch) error {
	doc := s.doc
	if doc == nil {
		doc = &Document{}
	}
	if err := applyPatch(doc, patch); err != nil {
		return err
	}
	s.doc = doc
	if patch.HistoryPath != "" && !patch.CurrentFetch.IsZero() {
		s.History = append(s.History, *patch.CurrentFetch)
	}
	return nil
}
