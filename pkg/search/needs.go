package search

import "strings"

// Phrases suggesting the user wants information beyond the document.
var searchIndicators = []string{
	"search for",
	"look up",
	"find information",
	"search the web",
	"what is",
	"what are",
	"who is",
	"when did",
	"where is",
	"how to",
	"how do",
	"why",
	"latest",
	"recent",
	"news about",
	"current",
	"explain",
	"define",
	"tell me about",
}

// Vocabulary that marks a message as being about the document itself, which
// the pages answer better than the web.
var documentVocabulary = []string{
	"slide",
	"pdf",
	"document",
	"page",
	"next",
	"previous",
}

// NeedsSearch reports whether a message should be augmented with web-search
// results: long enough to be a real question, not about the document, and
// carrying at least one informational cue.
func NeedsSearch(message string) bool {
	if len(message) <= 15 {
		return false
	}
	lower := strings.ToLower(message)
	for _, word := range documentVocabulary {
		if strings.Contains(lower, word) {
			return false
		}
	}
	if strings.Contains(lower, "?") {
		return true
	}
	for _, indicator := range searchIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
