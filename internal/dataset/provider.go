package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/GoSim-25-26J-441/bench-core/pkg/logger"
	"github.com/GoSim-25-26J-441/bench-core/pkg/models"
)

// FileProvider loads datasets from files under a root directory
type FileProvider struct {
	root string

	mu   sync.RWMutex
	refs map[string]models.DatasetRef
}

// NewFileProvider creates a provider for the given references. A dataset
// without a path is read from <root>/<name>.csv.
func NewFileProvider(root string, refs ...models.DatasetRef) *FileProvider {
	p := &FileProvider{root: root, refs: make(map[string]models.DatasetRef, len(refs))}
	for _, ref := range refs {
		p.refs[ref.Name] = ref
	}
	return p
}

// Add registers or replaces a reference
func (p *FileProvider) Add(ref models.DatasetRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs[ref.Name] = ref
}

func (p *FileProvider) resolve(id string) (string, bool) {
	p.mu.RLock()
	ref, ok := p.refs[id]
	p.mu.RUnlock()
	if !ok {
		ref = models.DatasetRef{Name: id}
	}
	path := ref.Path
	if path == "" {
		path = id + ".csv"
	}
	if !filepath.IsAbs(path) && p.root != "" {
		path = filepath.Join(p.root, path)
	}
	return path, !ref.Unlabeled
}

// Load implements Provider
func (p *FileProvider) Load(ctx context.Context, id string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, labeled := p.resolve(id)
	f, err := os.Open(path)
	if err != nil {
		return nil, models.WrapError(models.ErrDatasetLoad, fmt.Errorf("open dataset %s: %w", id, err))
	}
	defer f.Close()

	ds, err := Parse(f, id, labeled)
	if err != nil {
		return nil, err
	}
	logger.Debug("dataset loaded", "dataset", id, "path", path, "rows", ds.Len(), "features", ds.Dim())
	return ds, nil
}

// MemoryProvider serves datasets held in memory
type MemoryProvider struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewMemoryProvider creates a provider over the given datasets
func NewMemoryProvider(datasets ...*Dataset) *MemoryProvider {
	p := &MemoryProvider{datasets: make(map[string]*Dataset, len(datasets))}
	for _, ds := range datasets {
		p.datasets[ds.ID] = ds
	}
	return p
}

// Add registers or replaces a dataset
func (p *MemoryProvider) Add(ds *Dataset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.datasets[ds.ID] = ds
}

// Load implements Provider
func (p *MemoryProvider) Load(ctx context.Context, id string) (*Dataset, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ds, ok := p.datasets[id]
	if !ok {
		return nil, models.Errorf(models.ErrDatasetLoad, "dataset %s not found", id)
	}
	return ds, nil
}

type cacheEntry struct {
	done chan struct{}
	ds   *Dataset
	err  error
}

// CachedProvider loads each dataset once and shares the result. Concurrent
// loads of the same dataset wait for the first. Failed loads are not cached.
type CachedProvider struct {
	next Provider

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewCachedProvider wraps next with a cache
func NewCachedProvider(next Provider) *CachedProvider {
	return &CachedProvider{next: next, entries: make(map[string]*cacheEntry)}
}

// Load implements Provider
func (p *CachedProvider) Load(ctx context.Context, id string) (*Dataset, error) {
	p.mu.Lock()
	entry, ok := p.entries[id]
	if !ok {
		entry = &cacheEntry{done: make(chan struct{})}
		p.entries[id] = entry
		p.mu.Unlock()

		entry.ds, entry.err = p.next.Load(ctx, id)
		if entry.err != nil {
			p.mu.Lock()
			delete(p.entries, id)
			p.mu.Unlock()
		}
		close(entry.done)
		return entry.ds, entry.err
	}
	p.mu.Unlock()

	select {
	case <-entry.done:
		return entry.ds, entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget drops a cached dataset
func (p *CachedProvider) Forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, id)
}
