package collection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/codec"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/storage"
)

func newTestStore(t *testing.T, format codec.Format, opts ...Option) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return NewStore(fs, codec.New(format), opts...), root
}

func sequentialIDs() Option {
	var mu sync.Mutex
	n := 0
	return WithIDGenerator(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("r%d", n)
	})
}

func TestCreateCollectionWritesEmptyIndex(t *testing.T) {
	ctx := context.Background()
	for _, f := range []codec.Format{codec.FormatJSON, codec.FormatYAML} {
		s, root := newTestStore(t, f)
		if err := s.CreateCollection(ctx, "users"); err != nil {
			t.Fatalf("%s: CreateCollection: %v", f, err)
		}
		if _, err := os.Stat(filepath.Join(root, "users", "index."+string(f))); err != nil {
			t.Errorf("%s: index file missing: %v", f, err)
		}
		cached, ok := s.cache.cached("users")
		if !ok || len(cached) != 0 {
			t.Errorf("%s: cache = %v, %v; want empty entry", f, cached, ok)
		}
		// Re-creating is not an error.
		if err := s.CreateCollection(ctx, "users"); err != nil {
			t.Errorf("%s: second CreateCollection: %v", f, err)
		}
	}
}

func TestStructuredRoundTrip(t *testing.T) {
	for _, f := range []codec.Format{codec.FormatJSON, codec.FormatYAML} {
		ctx := context.Background()
		s, _ := newTestStore(t, f)
		_ = s.CreateCollection(ctx, "users")

		doc := models.Document{
			"name":   "Ann",
			"age":    30,
			"big":    int64(9007199254740993),
			"score":  1.5,
			"whole":  float64(30),
			"list":   []any{1, 2.5, "x"},
			"nested": map[string]any{"ok": true, "n": 7},
		}
		want := models.Document{
			"name":   "Ann",
			"age":    int64(30),
			"big":    int64(9007199254740993),
			"score":  1.5,
			"whole":  int64(30),
			"list":   []any{int64(1), 2.5, "x"},
			"nested": map[string]any{"ok": true, "n": int64(7)},
		}
		id, err := s.InsertRecord(ctx, "users", doc, false)
		if err != nil {
			t.Fatalf("%s: InsertRecord: %v", f, err)
		}
		rec, err := s.GetRecord(ctx, "users", id)
		if err != nil {
			t.Fatalf("%s: GetRecord: %v", f, err)
		}
		if rec == nil {
			t.Fatalf("%s: record not found", f)
		}
		if !reflect.DeepEqual(rec.Document, want) {
			t.Errorf("%s: document = %#v, want %#v", f, rec.Document, want)
		}

		// Reading the stored form back and writing it again is stable.
		if err := s.UpdateRecord(ctx, "users", id, rec.Document, false); err != nil {
			t.Fatalf("%s: UpdateRecord: %v", f, err)
		}
		again, _ := s.GetRecord(ctx, "users", id)
		if again == nil || !reflect.DeepEqual(again.Document, want) {
			t.Errorf("%s: second round trip = %+v", f, again)
		}
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatYAML)

	blob := []byte{0, 1, 2, 0xfe, 0xff, '\n', '{'}
	id, err := s.InsertRecord(ctx, "files", blob, true)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "files", id+".bin")); err != nil {
		t.Errorf("binary file missing: %v", err)
	}
	rec, err := s.GetRecord(ctx, "files", id)
	if err != nil || rec == nil {
		t.Fatalf("GetRecord: %v, %v", rec, err)
	}
	if !rec.IsBinary || !bytes.Equal(rec.Blob, blob) {
		t.Errorf("blob = %v, want %v", rec.Blob, blob)
	}
}

func TestGetRecordAbsent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, codec.FormatJSON)

	rec, err := s.GetRecord(ctx, "nothing", "r1")
	if err != nil || rec != nil {
		t.Errorf("unknown collection: got %v, %v", rec, err)
	}
	_ = s.CreateCollection(ctx, "users")
	rec, err = s.GetRecord(ctx, "users", "r1")
	if err != nil || rec != nil {
		t.Errorf("unknown id: got %v, %v", rec, err)
	}
}

func TestGetRecordMissingFileIsAbsent(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatJSON)
	id, _ := s.InsertRecord(ctx, "users", models.Document{"a": "b"}, false)

	if err := os.Remove(filepath.Join(root, "users", id+".json")); err != nil {
		t.Fatal(err)
	}
	rec, err := s.GetRecord(ctx, "users", id)
	if err != nil || rec != nil {
		t.Errorf("got %v, %v; want nil, nil", rec, err)
	}
}

func TestGetRecordMalformedIsSerialization(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatJSON)
	id, _ := s.InsertRecord(ctx, "users", models.Document{"a": "b"}, false)

	if err := os.WriteFile(filepath.Join(root, "users", id+".json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := s.GetRecord(ctx, "users", id)
	if !errors.Is(err, apperr.ErrSerialization) {
		t.Errorf("err = %v, want serialization", err)
	}
}

func TestDeleteRecord(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatJSON)
	id, _ := s.InsertRecord(ctx, "users", models.Document{"name": "Ann"}, false)

	if err := s.DeleteRecord(ctx, "users", id); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	rec, err := s.GetRecord(ctx, "users", id)
	if err != nil || rec != nil {
		t.Errorf("after delete: %v, %v", rec, err)
	}
	if _, err := os.Stat(filepath.Join(root, "users", id+".json")); !os.IsNotExist(err) {
		t.Errorf("record file still present: %v", err)
	}
}

func TestDeleteRecordToleratesMissingFile(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatJSON)
	id, _ := s.InsertRecord(ctx, "users", models.Document{"name": "Ann"}, false)
	_ = os.Remove(filepath.Join(root, "users", id+".json"))

	if err := s.DeleteRecord(ctx, "users", id); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	recs, _ := s.GetRecords(ctx, "users", models.Page{})
	if len(recs) != 0 {
		t.Errorf("records = %v", recs)
	}
}

func TestUnknownTargetsAreNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, codec.FormatJSON)
	_ = s.CreateCollection(ctx, "users")

	if err := s.UpdateRecord(ctx, "users", "nope", models.Document{"a": 1}, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update: err = %v, want not found", err)
	}
	if err := s.DeleteRecord(ctx, "users", "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("delete: err = %v, want not found", err)
	}
	if err := s.DeleteCollection(ctx, "ghost"); err != nil {
		t.Errorf("delete unknown collection: %v", err)
	}
}

func TestFlagMismatchIsValidation(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatJSON)
	_ = s.CreateCollection(ctx, "users")

	if _, err := s.InsertRecord(ctx, "users", []byte("raw"), false); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bytes as structured: err = %v", err)
	}
	if _, err := s.InsertRecord(ctx, "users", models.Document{"a": 1}, true); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("document as binary: err = %v", err)
	}

	id, _ := s.InsertRecord(ctx, "users", models.Document{"a": 1}, false)
	if err := s.UpdateRecord(ctx, "users", id, []byte("raw"), false); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("update mismatch: err = %v", err)
	}

	// Nothing but the index and the one valid record was written.
	entries, _ := os.ReadDir(filepath.Join(root, "users"))
	if len(entries) != 2 {
		t.Errorf("files = %d, want 2", len(entries))
	}
}

func TestUpdateRecordChangesRepresentation(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatYAML)
	id, _ := s.InsertRecord(ctx, "users", models.Document{"name": "Ann"}, false)

	blob := []byte("now binary")
	if err := s.UpdateRecord(ctx, "users", id, blob, true); err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	rec, err := s.GetRecord(ctx, "users", id)
	if err != nil || rec == nil {
		t.Fatalf("GetRecord: %v, %v", rec, err)
	}
	if !rec.IsBinary || string(rec.Blob) != "now binary" {
		t.Errorf("record = %+v", rec)
	}
	if _, err := os.Stat(filepath.Join(root, "users", id+".yaml")); !os.IsNotExist(err) {
		t.Errorf("stale structured file still present: %v", err)
	}

	// The flag change is persisted: a fresh store over the same root agrees.
	fs, _ := storage.NewFS(root)
	fresh := NewStore(fs, codec.New(codec.FormatYAML))
	rec, _ = fresh.GetRecord(ctx, "users", id)
	if rec == nil || !rec.IsBinary {
		t.Errorf("fresh store record = %+v", rec)
	}
}

func TestDeleteCollection(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatJSON)
	_, _ = s.InsertRecord(ctx, "users", models.Document{"name": "Ann"}, false)

	if err := s.DeleteCollection(ctx, "users"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "users")); !os.IsNotExist(err) {
		t.Errorf("collection dir still present: %v", err)
	}
	if _, ok := s.cache.cached("users"); ok {
		t.Error("cache entry not evicted")
	}
	if n := s.locks.count(); n != 0 {
		t.Errorf("locks = %d, want 0", n)
	}
	recs, err := s.GetRecords(ctx, "users", models.Page{})
	if err != nil || len(recs) != 0 {
		t.Errorf("records after delete = %v, %v", recs, err)
	}
}

func TestPagination(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, codec.FormatJSON, sequentialIDs())
	for i := range 5 {
		_, _ = s.InsertRecord(ctx, "nums", models.Document{"n": i}, false)
	}

	cases := []struct {
		page models.Page
		want []int64
	}{
		{models.Page{}, []int64{0, 1, 2, 3, 4}},
		{models.Page{Limit: 2}, []int64{0, 1}},
		{models.Page{Limit: 2, Skip: 2}, []int64{2, 3}},
		{models.Page{Limit: 10, Skip: 3}, []int64{3, 4}},
		{models.Page{Skip: 4}, []int64{4}},
		{models.Page{Skip: 5}, nil},
		{models.Page{Limit: 3, Skip: 99}, nil},
	}
	for _, c := range cases {
		recs, err := s.GetRecords(ctx, "nums", c.page)
		if err != nil {
			t.Fatalf("%+v: %v", c.page, err)
		}
		var got []int64
		for _, r := range recs {
			got = append(got, r.Document["n"].(int64))
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%+v: got %v, want %v", c.page, got, c.want)
		}
	}
}

func TestGetRecordsSkipsMissingFiles(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatJSON, sequentialIDs())
	for i := range 3 {
		_, _ = s.InsertRecord(ctx, "nums", models.Document{"n": i}, false)
	}
	_ = os.Remove(filepath.Join(root, "nums", "r2.json"))

	recs, err := s.GetRecords(ctx, "nums", models.Page{})
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "r1" || recs[1].ID != "r3" {
		t.Errorf("records = %+v", recs)
	}
}

func TestGetRecordsStopsWhenCancelled(t *testing.T) {
	s, _ := newTestStore(t, codec.FormatJSON)
	for i := range 3 {
		_, _ = s.InsertRecord(context.Background(), "nums", models.Document{"n": i}, false)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recs, err := s.GetRecords(ctx, "nums", models.Page{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if recs != nil {
		t.Errorf("records = %+v, want none", recs)
	}
}

func TestConcurrentInsertsYieldDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s, root := newTestStore(t, codec.FormatJSON)
	_ = s.CreateCollection(ctx, "users")

	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.InsertRecord(ctx, "users", models.Document{"i": i}, false)
			if err != nil {
				t.Errorf("InsertRecord: %v", err)
				return
			}
			ids[i] = id
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}

	fs, _ := storage.NewFS(root)
	fresh := NewStore(fs, codec.New(codec.FormatJSON))
	recs, err := fresh.GetRecords(ctx, "users", models.Page{})
	if err != nil || len(recs) != n {
		t.Errorf("index length = %d, %v; want %d", len(recs), err, n)
	}
}

func TestConcurrentMixedMutations(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, codec.FormatJSON)

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c"} {
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := s.InsertRecord(ctx, name, models.Document{"i": i}, false)
				if err != nil {
					t.Errorf("insert: %v", err)
					return
				}
				if i%2 == 0 {
					if err := s.DeleteRecord(ctx, name, id); err != nil {
						t.Errorf("delete: %v", err)
					}
				} else {
					if err := s.UpdateRecord(ctx, name, id, []byte("bin"), true); err != nil {
						t.Errorf("update: %v", err)
					}
				}
				// Lock-free reads racing the writers must never fail.
				if _, err := s.GetRecords(ctx, name, models.Page{}); err != nil {
					t.Errorf("list: %v", err)
				}
			}()
		}
	}
	wg.Wait()

	for _, name := range []string{"a", "b", "c"} {
		recs, err := s.GetRecords(ctx, name, models.Page{})
		if err != nil || len(recs) != 5 {
			t.Errorf("%s: %d records, %v; want 5", name, len(recs), err)
		}
		for _, r := range recs {
			if !r.IsBinary {
				t.Errorf("%s/%s: expected binary", name, r.ID)
			}
		}
	}
}

func TestListCollections(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, codec.FormatJSON)
	names, err := s.ListCollections(ctx)
	if err != nil || len(names) != 0 {
		t.Fatalf("empty root: %v, %v", names, err)
	}
	_ = s.CreateCollection(ctx, "users")
	_ = s.CreateCollection(ctx, "orders")
	names, _ = s.ListCollections(ctx)
	if !reflect.DeepEqual(names, []string{"orders", "users"}) {
		t.Errorf("names = %v", names)
	}
}

func TestInvalidCollectionNames(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, codec.FormatJSON)
	for _, name := range []string{"", ".", "..", "../etc", "a/b", `a\b`, ".hidden"} {
		if err := s.CreateCollection(ctx, name); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%q: err = %v, want validation", name, err)
		}
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var kinds []string
	s, _ := newTestStore(t, codec.FormatJSON, WithEventHandler(func(e models.Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, e.Kind)
	}))

	_ = s.CreateCollection(ctx, "users")
	id, _ := s.InsertRecord(ctx, "users", models.Document{"a": 1}, false)
	_ = s.UpdateRecord(ctx, "users", id, models.Document{"a": 2}, false)
	_ = s.DeleteRecord(ctx, "users", id)
	_ = s.DeleteCollection(ctx, "users")
	_ = s.DeleteRecord(ctx, "users", "missing") // failures emit nothing

	want := []string{
		models.EventCollectionCreated,
		models.EventRecordCreated,
		models.EventRecordUpdated,
		models.EventRecordDeleted,
		models.EventCollectionDeleted,
	}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
}

// The walkthrough: structured and binary records side by side.
func TestUsersScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, codec.FormatJSON, sequentialIDs())

	if err := s.CreateCollection(ctx, "users"); err != nil {
		t.Fatal(err)
	}
	r1, err := s.InsertRecord(ctx, "users", models.Document{"name": "Ann"}, false)
	if err != nil || r1 != "r1" {
		t.Fatalf("insert r1 = %q, %v", r1, err)
	}
	r2, err := s.InsertRecord(ctx, "users", make([]byte, 10), true)
	if err != nil || r2 != "r2" {
		t.Fatalf("insert r2 = %q, %v", r2, err)
	}

	recs, _ := s.GetRecords(ctx, "users", models.Page{Limit: 1})
	if len(recs) != 1 || !reflect.DeepEqual(recs[0].Document, models.Document{"name": "Ann"}) {
		t.Fatalf("first page = %+v", recs)
	}

	if err := s.UpdateRecord(ctx, "users", r1, models.Document{"name": "Ann", "age": 30}, false); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.GetRecord(ctx, "users", r1)
	if rec == nil || !reflect.DeepEqual(rec.Document, models.Document{"name": "Ann", "age": int64(30)}) {
		t.Fatalf("r1 = %+v", rec)
	}

	if err := s.DeleteRecord(ctx, "users", r2); err != nil {
		t.Fatal(err)
	}
	recs, _ = s.GetRecords(ctx, "users", models.Page{})
	if len(recs) != 1 {
		t.Errorf("len = %d, want 1", len(recs))
	}
}
