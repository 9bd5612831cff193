package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage/archive"
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Symbol    string
	Timeframe string
	Strategy  string
}

// prefix is the longest archive prefix the filter pins down.
func (f Filter) prefix() string {
	parts := []string{Root}
	for _, p := range []string{strings.ToUpper(f.Symbol), f.Timeframe, f.Strategy} {
		if p == "" {
			break
		}
		parts = append(parts, p)
	}
	return path.Join(parts...) + "/"
}

func (f Filter) match(r *Report) bool {
	return (f.Symbol == "" || strings.EqualFold(f.Symbol, r.Symbol)) &&
		(f.Timeframe == "" || f.Timeframe == r.Timeframe) &&
		(f.Strategy == "" || f.Strategy == r.Strategy)
}

// Archiver stores reports as JSON documents on an archive backend.
type Archiver struct {
	storage archive.Storage
}

func NewArchiver(storage archive.Storage) *Archiver {
	return &Archiver{storage: storage}
}

// Save writes the report and returns its archive path.
func (a *Archiver) Save(ctx context.Context, r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	p := r.Path()
	if err := a.storage.Write(ctx, p, data); err != nil {
		return "", core.WrapError(core.ErrStorageFailed, err)
	}
	return p, nil
}

// Load reads the report stored at p.
func (a *Archiver) Load(ctx context.Context, p string) (*Report, error) {
	data, err := a.storage.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decoding %s: %w", p, err))
	}
	return &r, nil
}

// List loads every archived report matching the filter, oldest first.
func (a *Archiver) List(ctx context.Context, f Filter) ([]*Report, error) {
	paths, err := a.storage.List(ctx, f.prefix())
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}

	var reports []*Report
	for _, p := range paths {
		if !strings.HasSuffix(p, ".json") {
			continue
		}
		r, err := a.Load(ctx, p)
		if err != nil {
			return nil, err
		}
		if f.match(r) {
			reports = append(reports, r)
		}
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].GeneratedAt.Before(reports[j].GeneratedAt)
	})
	return reports, nil
}
