package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/bsturgis0/zoti/internal/extract"
	"github.com/bsturgis0/zoti/pkg/kv"
)

type fakeExtractor struct {
	res extract.Result
	err error
}

func (f fakeExtractor) Extract(string, []byte) (extract.Result, error) {
	return f.res, f.err
}

func newTestStore(t *testing.T, ex extract.Extractor) (*Store, *miniredis.Miniredis) {
	t.Helper()
	redis := miniredis.RunT(t)
	return NewStore(kv.New(redis.Addr(), ""), ex), redis
}

func TestIngestCreatesExactPageCount(t *testing.T) {
	ex := fakeExtractor{res: extract.Result{
		Text:      "first page\fsecond page\fthird page\ffourth page\ffifth page",
		PageCount: 5,
	}}
	s, _ := newTestStore(t, ex)
	ctx := context.Background()

	doc, err := s.Ingest(ctx, "slides.pdf", []byte("raw"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if doc.TotalPages != 5 {
		t.Fatalf("total pages = %d, want 5", doc.TotalPages)
	}
	for i := 1; i <= 5; i++ {
		page, err := s.GetPage(ctx, doc.ID, i)
		if err != nil {
			t.Fatalf("get page %d: %v", i, err)
		}
		if strings.TrimSpace(page.Text) == "" {
			t.Fatalf("page %d has empty text", i)
		}
		if page.PageNumber != i {
			t.Fatalf("page number mismatch: got %d want %d", page.PageNumber, i)
		}
	}
	if _, err := s.GetPage(ctx, doc.ID, 6); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound beyond last page, got: %v", err)
	}
}

func TestIngestSinglePageUsesFullText(t *testing.T) {
	ex := fakeExtractor{res: extract.Result{Text: "  only page content  ", PageCount: 1}}
	s, _ := newTestStore(t, ex)
	ctx := context.Background()

	doc, err := s.Ingest(ctx, "one.pdf", nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	page, err := s.GetPage(ctx, doc.ID, 1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if page.Text != "only page content" {
		t.Fatalf("unexpected page text: %q", page.Text)
	}
}

func TestIngestSinglePageEmptyTextGetsPlaceholder(t *testing.T) {
	ex := fakeExtractor{res: extract.Result{Text: "   ", PageCount: 1}}
	s, _ := newTestStore(t, ex)

	doc, err := s.Ingest(context.Background(), "blank.pdf", nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	page, err := s.GetPage(context.Background(), doc.ID, 1)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if !strings.Contains(page.Text, "blank.pdf") {
		t.Fatalf("placeholder should name the file: %q", page.Text)
	}
}

func TestIngestFallbackOnExtractionFailure(t *testing.T) {
	ex := fakeExtractor{err: errors.New("encrypted pdf")}
	s, redis := newTestStore(t, ex)
	ctx := context.Background()

	doc, err := s.Ingest(ctx, "locked.pdf", []byte("raw"))
	if err != nil {
		t.Fatalf("ingest should degrade, not fail: %v", err)
	}
	if doc.TotalPages != 1 {
		t.Fatalf("fallback total pages = %d, want 1", doc.TotalPages)
	}
	page, err := s.GetPage(ctx, doc.ID, 1)
	if err != nil {
		t.Fatalf("get fallback page: %v", err)
	}
	if !strings.Contains(page.Text, "could not be processed") {
		t.Fatalf("fallback page missing diagnostic: %q", page.Text)
	}

	// Fallback records carry the short TTL.
	redis.FastForward(25 * time.Hour)
	if _, err := s.Get(ctx, doc.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("fallback document should expire within 24h, got: %v", err)
	}
}

func TestDocumentTTLOutlivesFallbackTTL(t *testing.T) {
	ex := fakeExtractor{res: extract.Result{Text: "content", PageCount: 1}}
	s, redis := newTestStore(t, ex)
	ctx := context.Background()

	doc, err := s.Ingest(ctx, "keep.pdf", nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	redis.FastForward(25 * time.Hour)
	if _, err := s.Get(ctx, doc.ID); err != nil {
		t.Fatalf("regular document should survive 25h: %v", err)
	}
	redis.FastForward(31 * 24 * time.Hour)
	if _, err := s.Get(ctx, doc.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("document should expire after 30 days, got: %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	ex := fakeExtractor{res: extract.Result{Text: "a\fb", PageCount: 2}}
	s, _ := newTestStore(t, ex)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		doc, err := s.Ingest(ctx, fmt.Sprintf("doc-%d.pdf", i), nil)
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
		ids = append(ids, doc.ID)
	}

	docs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}

	ok, err := s.Delete(ctx, ids[0])
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := s.GetPage(ctx, ids[0], 1); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("pages should be deleted with the document, got: %v", err)
	}
	ok, err = s.Delete(ctx, "missing-id")
	if err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if ok {
		t.Fatal("delete of missing document should report false")
	}
}
