package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF reads every page of a PDF. Pages are joined with form feeds so
// downstream pagination can split on a reliable boundary. Pages that fail to
// decode contribute empty text rather than failing the whole document.
func extractPDF(data []byte) (Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}
	totalPages := reader.NumPage()
	if totalPages < 1 {
		return Result{}, fmt.Errorf("pdf has no pages")
	}

	pageTexts := make([]string, 0, totalPages)
	extracted := false
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pageTexts = append(pageTexts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pageTexts = append(pageTexts, "")
			continue
		}
		text = strings.ToValidUTF8(text, "")
		if strings.TrimSpace(text) != "" {
			extracted = true
		}
		pageTexts = append(pageTexts, text)
	}
	if !extracted {
		return Result{}, fmt.Errorf("no text extracted from pdf")
	}
	return Result{
		Text:      strings.Join(pageTexts, "\f"),
		PageCount: totalPages,
	}, nil
}
