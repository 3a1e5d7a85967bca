package writeback

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matsen/bibshelf/internal/docmeta"
	"github.com/matsen/bibshelf/internal/liberr"
	"github.com/matsen/bibshelf/internal/library"
	"github.com/matsen/bibshelf/internal/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	calls    []string
	docs     map[int64]*docmeta.Meta
	files    map[int64][]string
	failDocs map[int64]error
	block    chan struct{} // when set, the first WriteDocument waits on it
	entered  chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     make(map[int64]*docmeta.Meta),
		files:    make(map[int64][]string),
		failDocs: make(map[int64]error),
	}
}

func (s *fakeStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeStore) WriteDocument(m *docmeta.Meta) error {
	if s.block != nil {
		b := s.block
		s.block = nil
		close(s.entered)
		<-b
	}
	s.mu.Lock()
	err := s.failDocs[m.ID]
	s.mu.Unlock()
	if err != nil {
		s.record("fail-doc")
		return err
	}
	s.record("doc")
	s.mu.Lock()
	s.docs[m.ID] = m
	s.files[m.ID] = m.Files
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) DeleteDocument(id int64) ([]string, error) {
	s.record("delete-doc")
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.files[id]
	delete(s.docs, id)
	delete(s.files, id)
	return files, nil
}

func (s *fakeStore) WriteFolder(id int64, name string, parentID int64) error {
	s.record("folder")
	return nil
}

func (s *fakeStore) DeleteFolder(id int64) error {
	s.record("delete-folder")
	return nil
}

type fakeFiles struct {
	mu       sync.Mutex
	detached []string
}

func (f *fakeFiles) Detach(rel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, rel)
	return nil
}

type fixture struct {
	lib   *library.Library
	mu    *sync.Mutex
	store *fakeStore
	files *fakeFiles
	c     *Coordinator
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		lib:   library.New(),
		mu:    &sync.Mutex{},
		store: newFakeStore(),
		files: &fakeFiles{},
	}
	f.c = New(f.lib, f.mu, f.store, f.files, nil)
	return f
}

func (f *fixture) add(t *testing.T, title string) int64 {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	id, err := f.lib.AddDocument(&docmeta.Meta{Title: title, Confirmed: true}, docmeta.FolderDefault)
	if err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	return id
}

func TestFlush_FoldersBeforeDocumentsAscending(t *testing.T) {
	f := setup(t)
	f.add(t, "b")
	f.add(t, "a")
	if _, err := f.lib.CreateFolder("Reading", docmeta.FolderAll); err != nil {
		t.Fatal(err)
	}

	r, err := f.c.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if diff := cmp.Diff([]string{"folder", "doc", "doc"}, f.store.Calls()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1, 2}, r.Written); diff != "" {
		t.Errorf("Written mismatch (-want +got):\n%s", diff)
	}
	if f.lib.DirtyCount() != 0 {
		t.Errorf("DirtyCount() = %d after flush, want 0", f.lib.DirtyCount())
	}
}

func TestFlush_DoubleSaveWritesNothing(t *testing.T) {
	f := setup(t)
	f.add(t, "a")

	if _, err := f.c.Flush(); err != nil {
		t.Fatal(err)
	}
	before := len(f.store.Calls())
	r, err := f.c.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if got := len(f.store.Calls()); got != before {
		t.Errorf("second flush made %d store calls", got-before)
	}
	if len(r.Written) != 0 {
		t.Errorf("second flush wrote %v", r.Written)
	}
}

func TestFlush_SkipsUnchangedDocument(t *testing.T) {
	f := setup(t)
	id := f.add(t, "a")
	if _, err := f.c.Flush(); err != nil {
		t.Fatal(err)
	}

	// Marking dirty without changing anything must not rewrite.
	f.lib.MarkDirty(library.Dirty{Docs: []int64{id}})
	r, err := f.c.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{id}, r.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestFlush_FailureStaysDirty(t *testing.T) {
	f := setup(t)
	ok := f.add(t, "ok")
	bad := f.add(t, "bad")
	f.store.failDocs[bad] = errors.New("disk full")

	r, err := f.c.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if diff := cmp.Diff([]int64{ok}, r.Written); diff != "" {
		t.Errorf("Written mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{bad}, r.Failed); diff != "" {
		t.Errorf("Failed mismatch (-want +got):\n%s", diff)
	}
	if f.lib.DirtyCount() != 1 {
		t.Errorf("DirtyCount() = %d, want 1", f.lib.DirtyCount())
	}

	// Next tick retries and succeeds.
	delete(f.store.failDocs, bad)
	r, err = f.c.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{bad}, r.Written); diff != "" {
		t.Errorf("retry Written mismatch (-want +got):\n%s", diff)
	}
}

func TestFlush_CorruptIsFatal(t *testing.T) {
	f := setup(t)
	id := f.add(t, "a")
	f.store.failDocs[id] = liberr.New(liberr.ErrCorrupt, "write document", "lib.sqlite", nil)

	if _, err := f.c.Flush(); !errors.Is(err, liberr.ErrCorrupt) {
		t.Fatalf("Flush() error = %v, want ErrCorrupt", err)
	}
	if !errors.Is(f.c.Err(), liberr.ErrCorrupt) {
		t.Errorf("Err() = %v, want ErrCorrupt", f.c.Err())
	}
	delete(f.store.failDocs, id)
	if _, err := f.c.Flush(); !errors.Is(err, liberr.ErrCorrupt) {
		t.Errorf("Flush() after corruption error = %v, want ErrCorrupt", err)
	}
}

func TestFlush_DestroyDeletesFiles(t *testing.T) {
	f := setup(t)
	id := f.add(t, "a")
	if err := f.lib.SetFiles(id, []string{"_collections/a.pdf"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := f.lib.SoftDeleteFromLibrary(id); err != nil {
		t.Fatal(err)
	}
	if err := f.lib.DestroyDocument(id); err != nil {
		t.Fatal(err)
	}
	r, err := f.c.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{id}, r.Deleted); diff != "" {
		t.Errorf("Deleted mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"_collections/a.pdf"}, f.files.detached); diff != "" {
		t.Errorf("detached mismatch (-want +got):\n%s", diff)
	}
}

func TestFlush_DestroyKeepsFilesOfLiveDocuments(t *testing.T) {
	f := setup(t)
	gone := f.add(t, "a")
	kept := f.add(t, "b")
	if err := f.lib.SetFiles(gone, []string{"_collections/shared.pdf", "_collections/own.pdf"}); err != nil {
		t.Fatal(err)
	}
	if err := f.lib.SetFiles(kept, []string{"_collections/shared.pdf"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := f.lib.SoftDeleteFromLibrary(gone); err != nil {
		t.Fatal(err)
	}
	if err := f.lib.DestroyDocument(gone); err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Flush(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"_collections/own.pdf"}, f.files.detached); diff != "" {
		t.Errorf("detached mismatch (-want +got):\n%s", diff)
	}
}

func TestFlush_DeletedFolderAfterDocuments(t *testing.T) {
	f := setup(t)
	fid, err := f.lib.CreateFolder("Old", docmeta.FolderAll)
	if err != nil {
		t.Fatal(err)
	}
	id := f.add(t, "a")
	if err := f.lib.AddToFolder(id, fid); err != nil {
		t.Fatal(err)
	}
	if _, err := f.c.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := f.lib.TrashFolder(fid); err != nil {
		t.Fatal(err)
	}
	f.lib.EmptyTrash()
	f.store.calls = nil
	if _, err := f.c.Flush(); err != nil {
		t.Fatal(err)
	}
	calls := f.store.Calls()
	if len(calls) == 0 || calls[len(calls)-1] != "delete-folder" {
		t.Errorf("calls = %v, want delete-folder last", calls)
	}
}

func TestFlush_CoalescesDuringRunningFlush(t *testing.T) {
	tests := []struct {
		name          string
		editMeanwhile bool
		wantWritten   []int64
		wantPasses    int
	}{
		{"no new edits", false, []int64{1}, 2},
		{"new edit drained by follow-up", true, []int64{1, 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.add(t, "first")
			f.store.block = make(chan struct{})
			f.store.entered = make(chan struct{})
			release := f.store.block

			type result struct {
				r   Report
				err error
			}
			done := make(chan result)
			go func() {
				r, err := f.c.Flush()
				done <- result{r, err}
			}()
			<-f.store.entered

			if tt.editMeanwhile {
				f.add(t, "second")
			}
			r, err := f.c.Flush()
			if err != nil || !r.Coalesced {
				t.Fatalf("concurrent Flush() = %+v, %v; want coalesced", r, err)
			}
			close(release)

			got := <-done
			if got.err != nil {
				t.Fatalf("Flush() error = %v", got.err)
			}
			if diff := cmp.Diff(tt.wantWritten, got.r.Written); diff != "" {
				t.Errorf("Written mismatch (-want +got):\n%s", diff)
			}
			if got.r.Passes != tt.wantPasses {
				t.Errorf("Passes = %d, want %d", got.r.Passes, tt.wantPasses)
			}
		})
	}
}

func TestStart_PeriodicFlush(t *testing.T) {
	f := setup(t)
	f.add(t, "a")
	if err := f.c.Start(time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer f.c.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.store.Calls()) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("periodic flush never ran")
}

func TestStart_RejectsTinyInterval(t *testing.T) {
	f := setup(t)
	if err := f.c.Start(time.Millisecond); err == nil {
		f.c.Stop()
		t.Error("Start() expected error for sub-second interval")
	}
}

func TestFlush_AgainstSQLite(t *testing.T) {
	db, err := storage.CreateNew(filepath.Join(t.TempDir(), "lib"+storage.FileSuffix))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	lib := library.New()
	mu := &sync.Mutex{}
	c := New(lib, mu, db, &fakeFiles{}, nil)

	id, err := lib.AddDocument(&docmeta.Meta{Title: "A", LastNames: []string{"X"}, FirstNames: []string{""}, Year: "2020"}, docmeta.FolderDefault)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("id = %d, want 1", id)
	}
	if _, err := c.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	snap, err := db.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Docs) != 1 {
		t.Fatalf("ReadAll() returned %d docs, want 1", len(snap.Docs))
	}
	if got := snap.Docs[1].CitationKey; got != "X2020" {
		t.Errorf("CitationKey = %q, want X2020", got)
	}
}
