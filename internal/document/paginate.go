package document

import (
	"fmt"
	"regexp"
	"strings"
)

// Page-break heuristics, tried in order. A heuristic wins when its split
// count lands within [0.5N, 1.5N] of the declared page count.
var pageBreakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\f`),                              // form feed
	regexp.MustCompile(`\n\s*\d+\s*\n`),                   // bare page-number lines
	regexp.MustCompile(`(?i)\n\s*Page\s+\d+\s+of\s+\d+\s*\n`), // "Page X of Y" lines
}

// splitIntoPages splits extracted full text into exactly numPages strings.
// Pattern-based splitting is preferred; an even character split is the
// fallback, and the result is padded or merged to the declared count.
func splitIntoPages(text string, numPages int) []string {
	if text == "" || numPages <= 1 {
		return []string{text}
	}

	var pageTexts []string
	for _, pattern := range pageBreakPatterns {
		splits := pattern.Split(text, -1)
		if len(splits)*2 >= numPages && len(splits)*2 <= numPages*3 {
			pageTexts = splits
			break
		}
	}

	// No heuristic qualified: split evenly by rune count.
	if len(pageTexts) <= 1 {
		runes := []rune(text)
		perPage := (len(runes) + numPages - 1) / numPages
		pageTexts = make([]string, 0, numPages)
		for i := 0; i < numPages; i++ {
			start := i * perPage
			if start > len(runes) {
				start = len(runes)
			}
			end := start + perPage
			if end > len(runes) {
				end = len(runes)
			}
			pageTexts = append(pageTexts, string(runes[start:end]))
		}
	}

	// Reconcile to exactly numPages.
	if len(pageTexts) < numPages {
		for i := len(pageTexts); i < numPages; i++ {
			pageTexts = append(pageTexts, fmt.Sprintf("[Page %d appears to be empty or contains only images/non-text content]", i+1))
		}
	} else if len(pageTexts) > numPages {
		extra := pageTexts[numPages-1:]
		pageTexts = append(pageTexts[:numPages-1], strings.Join(extra, "\n\n"))
	}
	return pageTexts
}

// pageText returns the trimmed text for a page, substituting a placeholder
// when the page is blank so every stored page carries non-empty content.
func pageText(raw string, pageNumber int, filename string) string {
	text := strings.TrimSpace(raw)
	if text != "" {
		return text
	}
	return fmt.Sprintf("Content from page %d of %q.", pageNumber, filename)
}
