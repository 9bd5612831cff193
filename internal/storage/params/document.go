// internal/storage/params/document.go
package params

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage/archive"
)

// backtestSection is the reserved top-level key holding run metadata.
const backtestSection = "__backtest"

type backtestMeta struct {
	Period      string    `json:"period"`
	Performance string    `json:"performance"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// DocumentStore keeps every record in one JSON document on an archive backend.
//
// The layout is compatible with best_params.json files written by the research
// scripts: each key maps to its params object, and "__backtest" maps each key
// to its period and performance.
type DocumentStore struct {
	mu      sync.Mutex
	storage archive.Storage
	path    string
}

// NewDocumentStore creates a store over the document at path.
func NewDocumentStore(storage archive.Storage, path string) *DocumentStore {
	if path == "" {
		path = "best_params.json"
	}
	return &DocumentStore{storage: storage, path: path}
}

func (d *DocumentStore) Get(ctx context.Context, key Key) (Record, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := d.load(ctx)
	if err != nil {
		return Record{}, false, err
	}
	return decodeRecord(doc, key.String())
}

func (d *DocumentStore) Put(ctx context.Context, key Key, rec Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := d.load(ctx)
	if err != nil {
		return err
	}

	name := key.String()
	raw, err := json.Marshal(rec.Params)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("encoding params for %s: %w", name, err))
	}
	doc[name] = raw

	meta := map[string]backtestMeta{}
	if section, ok := doc[backtestSection]; ok {
		if err := json.Unmarshal(section, &meta); err != nil {
			return core.WrapError(core.ErrStorageFailed, fmt.Errorf("decoding %s: %w", backtestSection, err))
		}
	}
	meta[name] = backtestMeta{Period: rec.Period, Performance: rec.Performance, UpdatedAt: rec.UpdatedAt}
	if doc[backtestSection], err = json.Marshal(meta); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	if err := d.storage.Write(ctx, d.path, out); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("writing %s: %w", d.path, err))
	}
	return nil
}

// load reads the whole document; a missing document is empty.
func (d *DocumentStore) load(ctx context.Context) (map[string]json.RawMessage, error) {
	data, err := d.storage.Read(ctx, d.path)
	if errors.Is(err, core.ErrNotFound) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("reading %s: %w", d.path, err))
	}
	doc := map[string]json.RawMessage{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decoding %s: %w", d.path, err))
	}
	return doc, nil
}

func decodeRecord(doc map[string]json.RawMessage, name string) (Record, bool, error) {
	raw, ok := doc[name]
	if !ok {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec.Params); err != nil {
		return Record{}, false, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decoding params for %s: %w", name, err))
	}
	if section, ok := doc[backtestSection]; ok {
		meta := map[string]backtestMeta{}
		if err := json.Unmarshal(section, &meta); err == nil {
			if m, ok := meta[name]; ok {
				rec.Period = m.Period
				rec.Performance = m.Performance
				rec.UpdatedAt = m.UpdatedAt
			}
		}
	}
	return rec, true, nil
}
