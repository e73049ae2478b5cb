package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsturgis0/zoti/internal/document"
	"github.com/bsturgis0/zoti/pkg/domain"
)

// Page tool responses are user-facing strings: navigation rejections read as
// guidance, and successful fetches carry the machine-parseable page marker.
const noActiveDocumentMsg = "No PDF is currently active. Please upload a PDF file first."

func pageMarker(doc domain.Document, pageNumber int) string {
	return fmt.Sprintf("[PDF: %s - Page %d of %d]", doc.Filename, pageNumber, doc.TotalPages)
}

func (a *App) activeDocument(ctx context.Context, userID string) (domain.Document, int, string) {
	state, err := a.sessions.Get(ctx, userID)
	if err != nil {
		return domain.Document{}, 0, "The active PDF could not be loaded. Please try again."
	}
	if !state.Active() {
		return domain.Document{}, 0, noActiveDocumentMsg
	}
	doc, err := a.documents.Get(ctx, *state.DocumentID)
	if errors.Is(err, document.ErrDocumentNotFound) {
		return domain.Document{}, 0, "The active PDF could not be found. It may have been removed."
	}
	if err != nil {
		return domain.Document{}, 0, "The active PDF could not be loaded. Please try again."
	}
	page := 1
	if state.PageNumber != nil {
		page = *state.PageNumber
	}
	return doc, page, ""
}

// currentPage returns the text of the user's current page, framed with the
// page marker.
func (a *App) currentPage(ctx context.Context, userID string) string {
	doc, pageNumber, msg := a.activeDocument(ctx, userID)
	if msg != "" {
		return msg
	}
	page, err := a.documents.GetPage(ctx, doc.ID, pageNumber)
	if err != nil {
		return fmt.Sprintf("Page %d could not be found in the PDF %q.", pageNumber, doc.Filename)
	}
	return fmt.Sprintf("%s\n\n%s", pageMarker(doc, pageNumber), page.Text)
}

// goToNextPage advances the session one page. At the last page, state is left
// untouched and the boundary message is returned.
func (a *App) goToNextPage(ctx context.Context, userID string) string {
	doc, current, msg := a.activeDocument(ctx, userID)
	if msg != "" {
		return msg
	}
	if current >= doc.TotalPages {
		return fmt.Sprintf("Already at the last page (%d of %d) of %q.", current, doc.TotalPages, doc.Filename)
	}
	return a.moveTo(ctx, userID, doc, current+1)
}

// goToPreviousPage moves the session one page back; page 1 is the floor.
func (a *App) goToPreviousPage(ctx context.Context, userID string) string {
	doc, current, msg := a.activeDocument(ctx, userID)
	if msg != "" {
		return msg
	}
	if current <= 1 {
		return fmt.Sprintf("Already at the first page of %q.", doc.Filename)
	}
	return a.moveTo(ctx, userID, doc, current-1)
}

// goToPage jumps to an absolute page. Out-of-range targets reject without
// mutating the session.
func (a *App) goToPage(ctx context.Context, userID string, pageNumber int) string {
	doc, _, msg := a.activeDocument(ctx, userID)
	if msg != "" {
		return msg
	}
	if pageNumber < 1 || pageNumber > doc.TotalPages {
		return fmt.Sprintf("Invalid page number. The PDF %q has %d pages.", doc.Filename, doc.TotalPages)
	}
	return a.moveTo(ctx, userID, doc, pageNumber)
}

func (a *App) moveTo(ctx context.Context, userID string, doc domain.Document, pageNumber int) string {
	if err := a.sessions.SetCurrentPage(ctx, userID, pageNumber); err != nil {
		return fmt.Sprintf("Failed to load page %d of %q.", pageNumber, doc.Filename)
	}
	page, err := a.documents.GetPage(ctx, doc.ID, pageNumber)
	if err != nil {
		return fmt.Sprintf("Failed to load page %d of %q.", pageNumber, doc.Filename)
	}
	return fmt.Sprintf("%s\n\n%s", pageMarker(doc, pageNumber), page.Text)
}

// DocumentInfo summarizes the active document for display.
func (a *App) DocumentInfo(ctx context.Context, userID string) string {
	doc, _, msg := a.activeDocument(ctx, userID)
	if msg != "" {
		return msg
	}
	return fmt.Sprintf("PDF Information:\n- Filename: %s\n- Total Pages: %d\n- Uploaded: %s",
		doc.Filename, doc.TotalPages, doc.UploadedAt.Local().Format("1/2/2006, 3:04:05 PM"))
}
