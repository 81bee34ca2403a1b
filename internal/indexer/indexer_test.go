package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotoba/internal/engine"
	"github.com/hyperjump/kotoba/internal/fileid"
	"github.com/hyperjump/kotoba/internal/lexicon"
	"github.com/hyperjump/kotoba/internal/metrics"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSink struct {
	mu   sync.Mutex
	docs map[string]models.Document
	fail error
}

func newFakeSink() *fakeSink {
	return &fakeSink{docs: make(map[string]models.Document)}
}

func (s *fakeSink) IndexDocument(_ context.Context, index string, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.docs[index+"/"+doc.ID] = doc
	return nil
}

func (s *fakeSink) DeleteDocument(_ context.Context, index, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, index+"/"+id)
	return nil
}

func (s *fakeSink) contents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.Content)
	}
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{"txt", "md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestPreprocess(t *testing.T) {
	if got := Preprocess("  alloy \t\n wheels  "); got != "alloy wheels" {
		t.Errorf("Preprocess = %q", got)
	}
}

func TestIndexDocument(t *testing.T) {
	sink := newFakeSink()
	m := metrics.New(prometheus.NewRegistry())
	idx := New(sink, "products", nil, WithMetrics(m))
	ctx := context.Background()

	id, err := idx.IndexDocument(ctx, &models.DocumentInput{Title: " Alloy ", Content: "wheels  17in"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("id should be generated")
	}
	doc := sink.docs["products/"+id]
	if doc.Title != "Alloy" || doc.Content != "wheels 17in" {
		t.Errorf("unexpected doc %+v", doc)
	}

	id, err = idx.IndexDocument(ctx, &models.DocumentInput{ID: "sku-1", Content: "roof rack"})
	if err != nil || id != "sku-1" {
		t.Fatalf("IndexDocument = %q, %v", id, err)
	}
	if _, err := idx.IndexDocument(ctx, &models.DocumentInput{ID: "blank", Content: "  "}); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("blank document: err = %v", err)
	}
	if got := testutil.ToFloat64(m.DocsIndexed); got != 2 {
		t.Errorf("docs indexed = %v, want 2", got)
	}

	if err := idx.DeleteDocument(ctx, "sku-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.docs["products/sku-1"]; ok {
		t.Error("sku-1 should be deleted")
	}
}

func TestIndexDocument_sinkError(t *testing.T) {
	sink := newFakeSink()
	sink.fail = errors.New("disk full")
	idx := New(sink, "products", nil)
	if _, err := idx.IndexDocument(context.Background(), &models.DocumentInput{Content: "x"}); err == nil {
		t.Error("expected sink error")
	}
}

func TestIndexFile_recordsAndUpdate(t *testing.T) {
	dir := t.TempDir()
	sink := newFakeSink()
	idx := New(sink, "products", nil)
	ctx := context.Background()
	path := filepath.Join(dir, "catalog.txt")
	t0 := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeFile(t, path, "alloy wheels\nspare tyre\nroof rack\n", t0)
	n, err := idx.IndexFile(ctx, path)
	if err != nil || n != 3 {
		t.Fatalf("IndexFile = %d, %v", n, err)
	}
	abs, _ := filepath.Abs(path)
	if doc := sink.docs["products/"+fileid.RecordID(abs, 1)]; doc.Content != "spare tyre" {
		t.Errorf("record 1 = %+v", doc)
	}

	n, err = idx.IndexFile(ctx, path)
	if err != nil || n != 0 {
		t.Errorf("unchanged file should be skipped, got %d, %v", n, err)
	}

	writeFile(t, path, "alloy wheels\n", t0.Add(time.Minute))
	if n, err = idx.IndexFile(ctx, path); err != nil || n != 1 {
		t.Fatalf("re-index = %d, %v", n, err)
	}
	if got := sink.contents(); len(got) != 1 || got[0] != "alloy wheels" {
		t.Errorf("stale records should be removed, got %q", got)
	}

	if err := idx.RemoveFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if got := sink.contents(); len(got) != 0 {
		t.Errorf("RemoveFile left %q", got)
	}
	if err := idx.RemoveFile(ctx, filepath.Join(dir, "never-indexed.txt")); err != nil {
		t.Errorf("removing an unknown file should be a no-op: %v", err)
	}
}

func TestIndexFile_rejected(t *testing.T) {
	dir := t.TempDir()
	idx := New(newFakeSink(), "products", nil, WithExtensions([]string{".txt"}))
	ctx := context.Background()

	md := filepath.Join(dir, "notes.md")
	writeFile(t, md, "x", time.Now())
	if _, err := idx.IndexFile(ctx, md); err == nil {
		t.Error("expected error for filtered extension")
	}
	sh := filepath.Join(dir, "script.sh")
	writeFile(t, sh, "x", time.Now())
	if _, err := New(newFakeSink(), "products", nil).IndexFile(ctx, sh); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := idx.IndexFile(ctx, filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "a.txt"), "alloy wheels\n", time.Now())
	writeFile(t, filepath.Join(nested, "b.md"), "spare tyre\nroof rack", time.Now())
	writeFile(t, filepath.Join(dir, "skip.bin"), "\x00\x01", time.Now())

	sink := newFakeSink()
	idx := New(sink, "products", nil)
	n, err := idx.IndexDirectory(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("files indexed = %d, want 2", n)
	}
	if got := sink.contents(); len(got) != 3 {
		t.Errorf("records = %q", got)
	}

	if _, err := idx.IndexDirectory(context.Background(), filepath.Join(dir, "a.txt")); err == nil {
		t.Error("expected error for a file passed as directory")
	}
}

func TestIndexFile_feedsEngineStatistics(t *testing.T) {
	e, err := engine.New(engine.Options{Indices: map[string]int{"products": 2}}, lexicon.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Close() })

	path := filepath.Join(t.TempDir(), "catalog.txt")
	writeFile(t, path, "alloy wheels\nsteel wheels\nroof rack\n", time.Now())
	idx := New(e, "products", nil)
	if _, err := idx.IndexFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	stats, err := e.IndexStats(context.Background(), "products")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDocs != 3 {
		t.Errorf("total docs = %d, want 3", stats.TotalDocs)
	}
}
