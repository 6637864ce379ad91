package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/shelf/internal/apperr"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte(`{"name": "Ann"}`)
	if err := s.Write("users/r1.json", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("users/r1.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestReadMissingIsNotExist(t *testing.T) {
	s := tempRoot(t)
	_, err := s.Read("users/nope.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
	if !errors.Is(err, apperr.ErrIO) {
		t.Errorf("err = %v, want IO kind", err)
	}
}

func TestMkdirAllIdempotent(t *testing.T) {
	s := tempRoot(t)
	for range 2 {
		if err := s.MkdirAll("users"); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}
	info, err := os.Stat(filepath.Join(s.Root(), "users"))
	if err != nil || !info.IsDir() {
		t.Fatalf("users dir missing: %v", err)
	}
}

func TestDeleteToleratesMissing(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("users/a.bin", []byte{1, 2, 3})
	if err := s.Delete("users/a.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("users/a.bin"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if _, err := s.Read("users/a.bin"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestDeleteAll(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("users/index.json", []byte("[]"))
	_ = s.Write("users/r1.json", []byte("{}"))
	if err := s.DeleteAll("users"); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "users")); !os.IsNotExist(err) {
		t.Errorf("users dir still present: %v", err)
	}
	if err := s.DeleteAll("users"); err != nil {
		t.Errorf("DeleteAll on missing dir: %v", err)
	}
}

func TestDeleteAllRefusesRoot(t *testing.T) {
	s := tempRoot(t)
	if err := s.DeleteAll(""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestListDirs(t *testing.T) {
	s := tempRoot(t)
	_ = s.MkdirAll("users")
	_ = s.MkdirAll("orders")
	_ = s.MkdirAll(".hidden")
	_ = s.Write("stray.json", []byte("{}"))

	dirs, err := s.ListDirs("")
	if err != nil {
		t.Fatalf("ListDirs: %v", err)
	}
	if len(dirs) != 2 {
		t.Errorf("dirs = %v, want 2 entries", dirs)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.json",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Read(%q) err = %v, want validation error", p, err)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if err := s.DeleteAll(p); err == nil {
			t.Errorf("expected error for delete of %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("users/index.json", []byte("[]"))
	if err := s.Write("users/index.json", []byte(`[{"id":"a","isBinary":false}]`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("users/index.json")
	if string(got) != `[{"id":"a","isBinary":false}]` {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, "users", ".shelf-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_CreatesMissingRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "storage")
	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if info, err := os.Stat(s.Root()); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "shelf-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestLayout(t *testing.T) {
	l := Layout{Ext: "yaml"}
	if got := l.IndexPath("users"); got != "users/index.yaml" {
		t.Errorf("IndexPath = %q", got)
	}
	if got := l.RecordPath("users", "r1", false); got != "users/r1.yaml" {
		t.Errorf("structured RecordPath = %q", got)
	}
	if got := l.RecordPath("users", "r1", true); got != "users/r1.bin" {
		t.Errorf("binary RecordPath = %q", got)
	}
}
