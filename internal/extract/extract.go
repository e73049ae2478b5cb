// Package extract turns uploaded binaries into plain text plus a page count.
// Extraction failures are expected (encrypted, damaged, unsupported input) and
// are surfaced as errors for the ingestion layer to degrade on.
package extract

import (
	"path/filepath"
	"strings"
)

// Result is the extracted full text and the declared page count.
type Result struct {
	Text      string
	PageCount int
}

// Extractor converts a raw upload into text.
type Extractor interface {
	Extract(filename string, data []byte) (Result, error)
}

// ByExtension dispatches to a format-specific extractor based on the filename.
type ByExtension struct{}

func (ByExtension) Extract(filename string, data []byte) (Result, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data)
	case ".html", ".htm", ".xhtml":
		return extractHTML(data)
	default:
		return extractPlainText(data)
	}
}

func extractPlainText(data []byte) (Result, error) {
	text := strings.ToValidUTF8(string(data), "")
	text = strings.ReplaceAll(text, "\x00", " ")
	return Result{Text: text, PageCount: 1}, nil
}
