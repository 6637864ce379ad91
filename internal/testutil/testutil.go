// Package testutil provides shared test helpers for setting up stores.
package testutil

import (
	"testing"

	"github.com/starford/shelf/internal/codec"
	"github.com/starford/shelf/internal/collection"
	"github.com/starford/shelf/internal/storage"
)

// TestRoot creates a temporary storage root with a storage.Provider.
func TestRoot(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, fs
}

// TestStore creates a JSON collection store over a temporary root.
func TestStore(t *testing.T, opts ...collection.Option) (string, *collection.Store) {
	t.Helper()
	root, fs := TestRoot(t)
	return root, collection.NewStore(fs, codec.New(codec.FormatJSON), opts...)
}
