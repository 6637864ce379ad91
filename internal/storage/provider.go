// Package storage defines the file-system abstraction under the store root.
package storage

// Provider is the interface for raw file operations. All paths are
// relative to the store root.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// MkdirAll creates dir and any parents; existing directories are fine.
	MkdirAll(dir string) error
	// Read returns the raw bytes of the file at path. A missing file yields
	// an error matching fs.ErrNotExist.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path; a missing file is not an error.
	Delete(path string) error
	// DeleteAll removes dir recursively; a missing dir is not an error.
	DeleteAll(dir string) error
	// ListDirs returns the names of the directories directly under dir.
	ListDirs(dir string) ([]string, error)
}
