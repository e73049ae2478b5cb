package app

import (
	"regexp"
	"strconv"

	"github.com/bsturgis0/zoti/pkg/domain"
)

var markerRe = regexp.MustCompile(`\[PDF: (.+?) - Page (\d+) of (\d+)\]`)

// ActiveDocumentFromMessages extracts the newest page marker from assistant
// output, letting callers recover navigation position without another round
// trip. Returns nil when no assistant message carries a marker.
func ActiveDocumentFromMessages(messages []domain.Message) *domain.ActiveDocument {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != domain.RoleAssistant {
			continue
		}
		m := markerRe.FindStringSubmatch(messages[i].Content)
		if m == nil {
			continue
		}
		currentPage, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		totalPages, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		return &domain.ActiveDocument{
			Name:        m[1],
			CurrentPage: currentPage,
			TotalPages:  totalPages,
		}
	}
	return nil
}
