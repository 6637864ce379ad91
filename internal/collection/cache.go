package collection

import (
	"errors"
	"io/fs"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/shelf/internal/codec"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/storage"
)

// indexCache mirrors each collection's index file in memory. The cached
// slice for a name always equals the last index successfully written (or
// read) for it; a failed write evicts the entry instead of leaving it stale.
type indexCache struct {
	fs     storage.Provider
	codec  *codec.Codec
	layout storage.Layout

	mu      sync.RWMutex
	entries map[string][]models.IndexEntry
	// epoch advances on every commit and eviction. A disk read only
	// populates the cache if no change happened while it was in flight.
	epoch uint64

	loads singleflight.Group
}

func newIndexCache(p storage.Provider, c *codec.Codec, l storage.Layout) *indexCache {
	return &indexCache{
		fs:      p,
		codec:   c,
		layout:  l,
		entries: make(map[string][]models.IndexEntry),
	}
}

// load returns a copy of the index for name. Concurrent cold loads of the
// same collection share a single disk read.
func (c *indexCache) load(name string) ([]models.IndexEntry, error) {
	if entries, ok := c.cached(name); ok {
		return entries, nil
	}
	v, err, _ := c.loads.Do(name, func() (any, error) {
		return c.fill(name)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]models.IndexEntry)), nil
}

// loadForWrite is load for callers holding the collection lock. It never
// joins an in-flight shared read, which may predate the caller's lock.
func (c *indexCache) loadForWrite(name string) ([]models.IndexEntry, error) {
	if entries, ok := c.cached(name); ok {
		return entries, nil
	}
	entries, err := c.fill(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(entries), nil
}

// fill reads the index from disk and caches it unless the cache changed
// meanwhile.
func (c *indexCache) fill(name string) ([]models.IndexEntry, error) {
	c.mu.RLock()
	epoch := c.epoch
	c.mu.RUnlock()

	entries, err := c.read(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[name]; ok {
		return cur, nil
	}
	if c.epoch == epoch {
		c.entries[name] = entries
	}
	return entries, nil
}

func (c *indexCache) read(name string) ([]models.IndexEntry, error) {
	data, err := c.fs.Read(c.layout.IndexPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.IndexEntry{}, nil
		}
		return nil, err
	}
	entries, err := c.codec.DecodeIndex(data)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	return entries, nil
}

// commit writes entries to disk and only then updates the cache. On any
// failure the cached entry is evicted before the error is returned.
func (c *indexCache) commit(name string, entries []models.IndexEntry) error {
	data, err := c.codec.EncodeIndex(entries)
	if err == nil {
		err = c.fs.Write(c.layout.IndexPath(name), data)
	}
	if err != nil {
		c.evict(name)
		return err
	}

	c.mu.Lock()
	c.entries[name] = slices.Clone(entries)
	c.epoch++
	c.mu.Unlock()
	return nil
}

// evict drops the cached index for name.
func (c *indexCache) evict(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.epoch++
	c.mu.Unlock()
}

// cached returns a copy of the cached index for name, if present.
func (c *indexCache) cached(name string) ([]models.IndexEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(entries), true
}
