// Package collection implements the collection store: named collections of
// structured or binary records kept as files under a root directory, with a
// per-collection lock and an in-memory mirror of each collection's index.
//
// Mutations of one collection (insert, update, delete, collection delete)
// are serialized by that collection's lock. Reads never take the lock and
// may observe an index snapshot that is older than an in-flight mutation;
// a record whose file is missing reads as absent.
package collection

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/codec"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/storage"
)

// Store coordinates locks, the index cache and record files.
type Store struct {
	fs     storage.Provider
	codec  *codec.Codec
	layout storage.Layout
	locks  lockRegistry
	cache  *indexCache

	logger          *slog.Logger
	newID           func() string
	onEvent         func(models.Event)
	readConcurrency int
}

// NewStore creates a store over p that encodes structured records with c.
func NewStore(p storage.Provider, c *codec.Codec, opts ...Option) *Store {
	layout := storage.Layout{Ext: c.Format().Ext()}
	s := &Store{
		fs:              p,
		codec:           c,
		layout:          layout,
		cache:           newIndexCache(p, c, layout),
		logger:          slog.Default(),
		newID:           newRecordID,
		readConcurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layout returns the on-disk path layout used by the store.
func (s *Store) Layout() storage.Layout {
	return s.layout
}

// CreateCollection creates the collection directory and writes an empty
// index. Re-creating an existing collection resets its index.
func (s *Store) CreateCollection(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	mu := s.locks.acquire(name)
	defer mu.Unlock()

	if err := s.fs.MkdirAll(s.layout.CollectionDir(name)); err != nil {
		return err
	}
	if err := s.cache.commit(name, []models.IndexEntry{}); err != nil {
		return err
	}
	s.emit(models.EventCollectionCreated, name, "")
	return nil
}

// DeleteCollection removes the collection directory, its lock and its cached
// index. Deleting a collection that does not exist is a no-op.
func (s *Store) DeleteCollection(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	mu := s.locks.acquire(name)
	defer mu.Unlock()

	err := s.fs.DeleteAll(s.layout.CollectionDir(name))
	s.cache.evict(name)
	if err != nil {
		return err
	}
	s.locks.remove(name)
	s.emit(models.EventCollectionDeleted, name, "")
	return nil
}

// ListCollections returns the names of the collections under the root.
func (s *Store) ListCollections(_ context.Context) ([]string, error) {
	dirs, err := s.fs.ListDirs("")
	if err != nil {
		return nil, err
	}
	slices.Sort(dirs)
	if dirs == nil {
		dirs = []string{}
	}
	return dirs, nil
}

// InsertRecord stores payload as a new record and returns its id. payload
// must be a []byte when isBinary is set and a document otherwise.
func (s *Store) InsertRecord(_ context.Context, name string, payload any, isBinary bool) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	data, err := s.codec.EncodeRecord(payload, isBinary)
	if err != nil {
		return "", err
	}

	mu := s.locks.acquire(name)
	defer mu.Unlock()

	entries, err := s.cache.loadForWrite(name)
	if err != nil {
		return "", err
	}
	id := s.uniqueID(entries)

	path := s.layout.RecordPath(name, id, isBinary)
	if err := s.fs.Write(path, data); err != nil {
		return "", err
	}
	entries = append(entries, models.IndexEntry{ID: id, IsBinary: isBinary})
	if err := s.cache.commit(name, entries); err != nil {
		if delErr := s.fs.Delete(path); delErr != nil {
			s.logger.Warn("collection: orphan record cleanup failed",
				slog.String("collection", name),
				slog.String("id", id),
				slog.String("error", delErr.Error()))
		}
		return "", err
	}
	s.emit(models.EventRecordCreated, name, id)
	return id, nil
}

// GetRecord returns the record with the given id, or nil when the id is not
// in the index or its file is missing.
func (s *Store) GetRecord(_ context.Context, name, id string) (*models.Record, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	entries, err := s.cache.load(name)
	if err != nil {
		return nil, err
	}
	i := indexOf(entries, id)
	if i < 0 {
		return nil, nil
	}
	return s.readRecord(name, entries[i])
}

// GetRecords returns the records in index positions [page.Skip,
// page.Skip+page.Limit), in index order. Entries whose file is missing are
// skipped.
func (s *Store) GetRecords(ctx context.Context, name string, page models.Page) ([]models.Record, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	entries, err := s.cache.load(name)
	if err != nil {
		return nil, err
	}
	lo, hi := page.Bounds(len(entries))
	window := entries[lo:hi]

	slots := make([]*models.Record, len(window))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.readConcurrency)
	for i, e := range window {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := s.readRecord(name, e)
			if err != nil {
				return err
			}
			slots[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.Record, 0, len(slots))
	for _, rec := range slots {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// UpdateRecord overwrites record id with payload. The representation follows
// the new isBinary flag; when it changes, the index is rewritten and the
// file of the previous representation removed.
func (s *Store) UpdateRecord(_ context.Context, name, id string, payload any, isBinary bool) error {
	if err := validateName(name); err != nil {
		return err
	}
	data, err := s.codec.EncodeRecord(payload, isBinary)
	if err != nil {
		return err
	}

	mu := s.locks.acquire(name)
	defer mu.Unlock()

	entries, err := s.cache.loadForWrite(name)
	if err != nil {
		return err
	}
	i := indexOf(entries, id)
	if i < 0 {
		return apperr.NotFound("collection: update " + name + "/" + id)
	}

	if err := s.fs.Write(s.layout.RecordPath(name, id, isBinary), data); err != nil {
		return err
	}
	if prev := entries[i].IsBinary; prev != isBinary {
		entries[i].IsBinary = isBinary
		if err := s.cache.commit(name, entries); err != nil {
			return err
		}
		if err := s.fs.Delete(s.layout.RecordPath(name, id, prev)); err != nil {
			s.logger.Warn("collection: stale representation cleanup failed",
				slog.String("collection", name),
				slog.String("id", id),
				slog.String("error", err.Error()))
		}
	}
	s.emit(models.EventRecordUpdated, name, id)
	return nil
}

// DeleteRecord removes record id from the collection.
func (s *Store) DeleteRecord(_ context.Context, name, id string) error {
	if err := validateName(name); err != nil {
		return err
	}
	mu := s.locks.acquire(name)
	defer mu.Unlock()

	entries, err := s.cache.loadForWrite(name)
	if err != nil {
		return err
	}
	i := indexOf(entries, id)
	if i < 0 {
		return apperr.NotFound("collection: delete " + name + "/" + id)
	}
	if err := s.fs.Delete(s.layout.RecordPath(name, id, entries[i].IsBinary)); err != nil {
		return err
	}
	entries = slices.Delete(entries, i, i+1)
	if err := s.cache.commit(name, entries); err != nil {
		return err
	}
	s.emit(models.EventRecordDeleted, name, id)
	return nil
}

// Evict drops the cached index of a collection so the next access rereads
// it from disk.
func (s *Store) Evict(name string) {
	s.cache.evict(name)
}

func (s *Store) readRecord(name string, e models.IndexEntry) (*models.Record, error) {
	data, err := s.fs.Read(s.layout.RecordPath(name, e.ID, e.IsBinary))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("collection: record file missing",
				slog.String("collection", name),
				slog.String("id", e.ID))
			return nil, nil
		}
		return nil, err
	}
	return s.codec.DecodeRecord(e.ID, data, e.IsBinary)
}

func (s *Store) uniqueID(entries []models.IndexEntry) string {
	for {
		id := s.newID()
		if indexOf(entries, id) < 0 {
			return id
		}
	}
}

func (s *Store) emit(kind, name, id string) {
	if s.onEvent != nil {
		s.onEvent(models.Event{Kind: kind, Collection: name, ID: id})
	}
}

func indexOf(entries []models.IndexEntry, id string) int {
	return slices.IndexFunc(entries, func(e models.IndexEntry) bool {
		return e.ID == id
	})
}

// validateName rejects names that cannot be a single directory component.
func validateName(name string) error {
	switch {
	case name == "":
		return apperr.Validation("collection", "name is required")
	case strings.HasPrefix(name, "."):
		return apperr.Validation("collection", "name must not start with a dot: "+name)
	case strings.ContainsAny(name, `/\`):
		return apperr.Validation("collection", "name must not contain path separators: "+name)
	}
	return nil
}

func newRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
