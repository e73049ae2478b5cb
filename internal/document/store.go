// Package document ingests uploaded files into paginated, TTL-bound records.
package document

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bsturgis0/zoti/internal/extract"
	"github.com/bsturgis0/zoti/internal/util"
	"github.com/bsturgis0/zoti/pkg/domain"
	"github.com/bsturgis0/zoti/pkg/kv"
)

const (
	// Regular documents live for 30 days; fallback documents created after a
	// failed extraction carry a short TTL so broken records age out quickly.
	documentTTL = 30 * 24 * time.Hour
	fallbackTTL = 24 * time.Hour

	listConcurrency = 8
)

var (
	// ErrDocumentNotFound indicates the document is absent or expired.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrPageNotFound indicates the page record is absent or expired.
	ErrPageNotFound = errors.New("page not found")
)

// Store persists documents and their pages in the key-value backend.
type Store struct {
	kv        *kv.Store
	extractor extract.Extractor
}

// NewStore builds a document store over the given backend and extractor.
func NewStore(kvStore *kv.Store, extractor extract.Extractor) *Store {
	return &Store{kv: kvStore, extractor: extractor}
}

// Ingest extracts, paginates and persists an upload. Extraction failure does
// not fail the call: a single-page fallback document with a diagnostic page
// is stored instead, under the shorter TTL. Store failures do propagate.
func (s *Store) Ingest(ctx context.Context, filename string, data []byte) (domain.Document, error) {
	res, err := s.extractor.Extract(filename, data)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("extraction failed, storing fallback document",
			"filename", filename, "err", err)
		return s.storeFallback(ctx, filename)
	}

	numPages := res.PageCount
	if numPages < 1 {
		numPages = 1
	}
	doc := domain.Document{
		ID:         newDocumentID(filename),
		Filename:   filename,
		TotalPages: numPages,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.putDocument(ctx, doc, documentTTL); err != nil {
		return domain.Document{}, err
	}

	if numPages == 1 {
		text := strings.TrimSpace(res.Text)
		if text == "" {
			text = fmt.Sprintf("Content from %q. This page contains educational content.", filename)
		}
		if err := s.putPage(ctx, doc.ID, 1, text, documentTTL); err != nil {
			return domain.Document{}, err
		}
		return doc, nil
	}

	for i, raw := range splitIntoPages(res.Text, numPages) {
		pageNumber := i + 1
		if err := s.putPage(ctx, doc.ID, pageNumber, pageText(raw, pageNumber, filename), documentTTL); err != nil {
			return domain.Document{}, err
		}
	}
	return doc, nil
}

func (s *Store) storeFallback(ctx context.Context, filename string) (domain.Document, error) {
	doc := domain.Document{
		ID:         newDocumentID(filename),
		Filename:   filename,
		TotalPages: 1,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.putDocument(ctx, doc, fallbackTTL); err != nil {
		return domain.Document{}, err
	}
	diag := fmt.Sprintf("This PDF could not be processed properly. It might be encrypted, damaged, or in an unsupported format. Filename: %s", filename)
	if err := s.putPage(ctx, doc.ID, 1, diag, fallbackTTL); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Get returns the document metadata for id.
func (s *Store) Get(ctx context.Context, id string) (domain.Document, error) {
	raw, err := s.kv.Get(ctx, kv.Key(kv.KeyDocument, id))
	if errors.Is(err, kv.ErrNotFound) {
		return domain.Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// GetPage returns one page of a document.
func (s *Store) GetPage(ctx context.Context, documentID string, pageNumber int) (domain.Page, error) {
	raw, err := s.kv.Get(ctx, pageKey(documentID, pageNumber))
	if errors.Is(err, kv.ErrNotFound) {
		return domain.Page{}, ErrPageNotFound
	}
	if err != nil {
		return domain.Page{}, fmt.Errorf("get page: %w", err)
	}
	var page domain.Page
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		return domain.Page{}, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}

// List returns all stored documents, newest first. Records that expire
// between the key scan and the read are skipped.
func (s *Store) List(ctx context.Context) ([]domain.Document, error) {
	keys, err := s.kv.Keys(ctx, kv.KeyDocument)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	var (
		mu   sync.Mutex
		docs []domain.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			raw, err := s.kv.Get(gctx, key)
			if errors.Is(err, kv.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var doc domain.Document
			if err := json.Unmarshal([]byte(raw), &doc); err != nil {
				return nil
			}
			mu.Lock()
			docs = append(docs, doc)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	return docs, nil
}

// Delete removes a document and every page record belonging to it. It
// reports whether the document existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	doc, err := s.Get(ctx, id)
	if errors.Is(err, ErrDocumentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	keys := make([]string, 0, doc.TotalPages+1)
	for i := 1; i <= doc.TotalPages; i++ {
		keys = append(keys, pageKey(id, i))
	}
	keys = append(keys, kv.Key(kv.KeyDocument, id))
	if err := s.kv.Delete(ctx, keys...); err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return true, nil
}

func (s *Store) putDocument(ctx context.Context, doc domain.Document, ttl time.Duration) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := s.kv.Set(ctx, kv.Key(kv.KeyDocument, doc.ID), string(payload), ttl); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

func (s *Store) putPage(ctx context.Context, documentID string, pageNumber int, text string, ttl time.Duration) error {
	payload, err := json.Marshal(domain.Page{
		DocumentID: documentID,
		PageNumber: pageNumber,
		Text:       text,
	})
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	if err := s.kv.Set(ctx, pageKey(documentID, pageNumber), string(payload), ttl); err != nil {
		return fmt.Errorf("store page %d: %w", pageNumber, err)
	}
	return nil
}

func pageKey(documentID string, pageNumber int) string {
	return kv.Key(kv.KeyPage, documentID+":"+strconv.Itoa(pageNumber))
}

// newDocumentID derives a stable hex ID from the filename and ingestion time.
func newDocumentID(filename string) string {
	sum := md5.Sum([]byte(filename + strconv.FormatInt(time.Now().UnixNano(), 10)))
	return hex.EncodeToString(sum[:])
}
